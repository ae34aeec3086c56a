package bigquery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// newTestClient points a client at a local test server with a pre-cached
// token, so no OAuth round-trip ever happens.
func newTestClient(t *testing.T, server *httptest.Server, opts Options) *Client {
	t.Helper()

	authClient := &AuthClient{
		creds:       Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "token"},
		config:      &oauth2.Config{ClientID: "id", ClientSecret: "secret"},
		cachedToken: &oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)},
		cacheExpiry: time.Now().Add(time.Hour),
	}

	client, err := NewClient(authClient, "test-project", opts)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	client.baseURL = server.URL
	return client
}

const completeResponse = `{"kind":"bigquery#queryResponse","jobComplete":true,"rows":[]}`

func TestQueryRetriesTransientFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completeResponse))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 3})

	response, err := client.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if !response.JobComplete {
		t.Error("expected complete job")
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestQueryDoesNotRetryAuthFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 3})

	_, err := client.Query(context.Background(), "SELECT 1", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt for a non-transient failure, got %d", calls)
	}
}

func TestQueryExhaustsRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 2})

	_, err := client.Query(context.Background(), "SELECT 1", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestQueryMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 1})

	_, err := client.Query(context.Background(), "SELECT 1", nil)
	if !errors.Is(err, ErrMalformedResult) {
		t.Errorf("expected ErrMalformedResult, got: %v", err)
	}
}

func TestQueryIncompleteJobIsTransient(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"jobComplete":false}`))
			return
		}
		w.Write([]byte(completeResponse))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 2})

	if _, err := client.Query(context.Background(), "SELECT 1", nil); err != nil {
		t.Fatalf("expected incomplete job to be retried, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestQueryHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Query(ctx, "SELECT 1", nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestQueryFollowsResultPages(t *testing.T) {
	firstPage := `{
		"jobComplete": true,
		"jobReference": {"projectId": "test-project", "jobId": "job_1", "location": "US"},
		"totalRows": "3",
		"pageToken": "tok-2",
		"rows": [{"f":[{"v":"u1"}]}]
	}`
	secondPage := `{
		"jobComplete": true,
		"totalRows": "3",
		"pageToken": "tok-3",
		"rows": [{"f":[{"v":"u2"}]}]
	}`
	lastPage := `{
		"jobComplete": true,
		"totalRows": "3",
		"rows": [{"f":[{"v":"u3"}]}]
	}`

	var pageTokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(firstPage))
			return
		}
		token := r.URL.Query().Get("pageToken")
		pageTokens = append(pageTokens, token)
		switch token {
		case "tok-2":
			w.Write([]byte(secondPage))
		case "tok-3":
			w.Write([]byte(lastPage))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 1})

	response, err := client.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(response.Rows) != 3 {
		t.Errorf("expected all 3 rows across pages, got %d", len(response.Rows))
	}
	if len(pageTokens) != 2 || pageTokens[0] != "tok-2" || pageTokens[1] != "tok-3" {
		t.Errorf("unexpected continuation tokens: %v", pageTokens)
	}
}

func TestQueryRejectsTruncatedResult(t *testing.T) {
	// More rows claimed than delivered, and no continuation token to fetch
	// the rest.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobComplete":true,"totalRows":"200000","rows":[{"f":[{"v":"u1"}]}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 1})

	_, err := client.Query(context.Background(), "SELECT 1", nil)
	if !errors.Is(err, ErrMalformedResult) {
		t.Errorf("expected ErrMalformedResult for truncated result, got: %v", err)
	}
}

func TestQueryPageWithoutJobReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobComplete":true,"pageToken":"tok","rows":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{RetryAttempts: 1})

	_, err := client.Query(context.Background(), "SELECT 1", nil)
	if !errors.Is(err, ErrMalformedResult) {
		t.Errorf("expected ErrMalformedResult for missing job reference, got: %v", err)
	}
}

func TestStringArrayParam(t *testing.T) {
	param := StringArrayParam("events", []string{"a", "b"})

	if param.ParameterType.Type != "ARRAY" || param.ParameterType.ArrayType.Type != "STRING" {
		t.Errorf("unexpected parameter type: %+v", param.ParameterType)
	}
	if len(param.ParameterValue.ArrayValues) != 2 {
		t.Fatalf("expected 2 array values, got %d", len(param.ParameterValue.ArrayValues))
	}
	if param.ParameterValue.ArrayValues[0].Value != "a" {
		t.Errorf("unexpected first value: %+v", param.ParameterValue.ArrayValues[0])
	}
}
