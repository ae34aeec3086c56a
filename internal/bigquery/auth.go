package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// BigQueryReadOnlyScope is the only scope the report run needs.
	BigQueryReadOnlyScope = "https://www.googleapis.com/auth/bigquery.readonly"

	// TokenRefreshBuffer refreshes tokens 5 minutes before expiry.
	TokenRefreshBuffer = 5 * time.Minute
)

// Credentials holds the OAuth client identity and the long-lived refresh
// token used to mint access tokens.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// AuthClient manages OAuth2 authentication for BigQuery API calls.
type AuthClient struct {
	creds  Credentials
	config *oauth2.Config

	// Token cache to avoid repeated refresh round-trips.
	tokenMutex  sync.RWMutex
	cachedToken *oauth2.Token
	cacheExpiry time.Time
}

// NewAuthClient creates an authentication client from explicit credentials.
func NewAuthClient(creds Credentials) (*AuthClient, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("OAuth credentials not configured - run 'vcfunnel config set' first")
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token not configured - run 'vcfunnel config set' first")
	}

	return &AuthClient{
		creds: creds,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{BigQueryReadOnlyScope},
		},
	}, nil
}

// GetAccessToken returns a valid access token, refreshing when the cached one
// is near expiry.
func (a *AuthClient) GetAccessToken(ctx context.Context) (*oauth2.Token, error) {
	a.tokenMutex.RLock()
	if a.cachedToken != nil && time.Now().Before(a.cacheExpiry) {
		token := a.cachedToken
		a.tokenMutex.RUnlock()
		return token, nil
	}
	a.tokenMutex.RUnlock()

	return a.refreshToken(ctx)
}

func (a *AuthClient) refreshToken(ctx context.Context) (*oauth2.Token, error) {
	a.tokenMutex.Lock()
	defer a.tokenMutex.Unlock()

	// Double-check cache after acquiring the write lock.
	if a.cachedToken != nil && time.Now().Before(a.cacheExpiry) {
		return a.cachedToken, nil
	}

	tokenSource := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: a.creds.RefreshToken})
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	if newToken.AccessToken == "" {
		return nil, fmt.Errorf("received empty access token")
	}

	cacheExpiry := newToken.Expiry
	if !cacheExpiry.IsZero() {
		cacheExpiry = cacheExpiry.Add(-TokenRefreshBuffer)
	} else {
		cacheExpiry = time.Now().Add(1 * time.Hour)
	}

	a.cachedToken = newToken
	a.cacheExpiry = cacheExpiry

	return newToken, nil
}

// AuthenticatedHTTPClient returns an HTTP client that attaches and refreshes
// OAuth tokens automatically.
func (a *AuthClient) AuthenticatedHTTPClient(ctx context.Context) (*http.Client, error) {
	token, err := a.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	tokenSource := oauth2.ReuseTokenSource(token, &refreshTokenSource{authClient: a, ctx: ctx})
	return oauth2.NewClient(ctx, tokenSource), nil
}

// ClearTokenCache drops the cached access token, forcing a refresh.
func (a *AuthClient) ClearTokenCache() {
	a.tokenMutex.Lock()
	defer a.tokenMutex.Unlock()

	a.cachedToken = nil
	a.cacheExpiry = time.Time{}
}

// refreshTokenSource implements oauth2.TokenSource for automatic refresh.
type refreshTokenSource struct {
	authClient *AuthClient
	ctx        context.Context
}

func (r *refreshTokenSource) Token() (*oauth2.Token, error) {
	return r.authClient.GetAccessToken(r.ctx)
}
