package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Typed failures surfaced to the caller instead of raw transport errors. The
// whole run aborts on either; there is no per-metric partial recovery.
var (
	// ErrStoreUnavailable marks network, auth, quota, or server-side failures.
	ErrStoreUnavailable = errors.New("event store unavailable")

	// ErrMalformedResult marks responses the client could not interpret.
	ErrMalformedResult = errors.New("malformed query result")
)

// errTransient tags failures that a retry can plausibly fix (network errors,
// throttling, server errors). It always travels alongside ErrStoreUnavailable.
var errTransient = errors.New("transient")

func transientStoreError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrStoreUnavailable, errTransient, fmt.Sprintf(format, args...))
}

// Options tunes request handling for the client.
type Options struct {
	// RequestTimeout bounds each query round-trip. Zero means DefaultTimeout.
	RequestTimeout time.Duration

	// RetryAttempts is the total number of tries per query for transient
	// failures. Zero means DefaultRetryAttempts; aggregation queries are
	// idempotent reads, so retrying is always safe.
	RetryAttempts int
}

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3

	retryBaseDelay = 500 * time.Millisecond
)

// Client is a typed BigQuery jobs.query REST client.
type Client struct {
	authClient *AuthClient
	baseURL    string
	projectID  string
	opts       Options
}

// NewClient creates a BigQuery client for one GCP project.
func NewClient(authClient *AuthClient, projectID string, opts Options) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultTimeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}

	return &Client{
		authClient: authClient,
		baseURL:    "https://bigquery.googleapis.com/bigquery/v2",
		projectID:  projectID,
		opts:       opts,
	}, nil
}

// jobs.query request/response structures (the subset the report needs).
type QueryRequest struct {
	Query           string           `json:"query"`
	UseLegacySQL    bool             `json:"useLegacySql"`
	ParameterMode   string           `json:"parameterMode,omitempty"`
	QueryParameters []QueryParameter `json:"queryParameters,omitempty"`
	TimeoutMs       int64            `json:"timeoutMs,omitempty"`
	MaxResults      int64            `json:"maxResults,omitempty"`
}

type QueryParameter struct {
	Name           string         `json:"name"`
	ParameterType  ParameterType  `json:"parameterType"`
	ParameterValue ParameterValue `json:"parameterValue"`
}

type ParameterType struct {
	Type      string         `json:"type"` // STRING, ARRAY
	ArrayType *ParameterType `json:"arrayType,omitempty"`
}

type ParameterValue struct {
	Value       string           `json:"value,omitempty"`
	ArrayValues []ParameterValue `json:"arrayValues,omitempty"`
}

// QueryResponse is shared between jobs.query and jobs.getQueryResults; both
// carry the same row, paging, and error fields.
type QueryResponse struct {
	Kind         string       `json:"kind"`
	JobComplete  bool         `json:"jobComplete"`
	JobReference JobReference `json:"jobReference"`
	TotalRows    string       `json:"totalRows"`
	PageToken    string       `json:"pageToken"`
	Schema       TableSchema  `json:"schema"`
	Rows         []TableRow   `json:"rows"`
	Errors       []QueryError `json:"errors"`
}

type JobReference struct {
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId"`
	Location  string `json:"location,omitempty"`
}

type TableSchema struct {
	Fields []TableFieldSchema `json:"fields"`
}

type TableFieldSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableRow struct {
	F []TableCell `json:"f"`
}

// TableCell holds one value; BigQuery encodes scalars as JSON strings and
// NULL as a JSON null.
type TableCell struct {
	V *string `json:"v"`
}

type QueryError struct {
	Reason   string `json:"reason"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// StringParam builds a STRING named parameter.
func StringParam(name, value string) QueryParameter {
	return QueryParameter{
		Name:           name,
		ParameterType:  ParameterType{Type: "STRING"},
		ParameterValue: ParameterValue{Value: value},
	}
}

// StringArrayParam builds an ARRAY<STRING> named parameter.
func StringArrayParam(name string, values []string) QueryParameter {
	arrayValues := make([]ParameterValue, 0, len(values))
	for _, v := range values {
		arrayValues = append(arrayValues, ParameterValue{Value: v})
	}
	return QueryParameter{
		Name:           name,
		ParameterType:  ParameterType{Type: "ARRAY", ArrayType: &ParameterType{Type: "STRING"}},
		ParameterValue: ParameterValue{ArrayValues: arrayValues},
	}
}

// Query executes one synchronous query with per-request timeout and bounded
// retry with exponential backoff on transient failures. Paginated results are
// followed to the last page, so the returned rows are always the complete
// result set.
func (c *Client) Query(ctx context.Context, sql string, params []QueryParameter) (*QueryResponse, error) {
	request := &QueryRequest{
		Query:           sql,
		UseLegacySQL:    false,
		ParameterMode:   "NAMED",
		QueryParameters: params,
		TimeoutMs:       c.opts.RequestTimeout.Milliseconds(),
	}

	response, err := c.withRetry(ctx, func(ctx context.Context) (*QueryResponse, error) {
		return c.runQuery(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	for response.PageToken != "" {
		token := response.PageToken
		page, err := c.withRetry(ctx, func(ctx context.Context) (*QueryResponse, error) {
			return c.fetchPage(ctx, response.JobReference, token)
		})
		if err != nil {
			return nil, err
		}
		response.Rows = append(response.Rows, page.Rows...)
		response.PageToken = page.PageToken
	}

	// A result claiming more rows than were delivered, without a continuation
	// token, would silently truncate distinct-user sets.
	if response.TotalRows != "" {
		total, err := strconv.ParseUint(response.TotalRows, 10, 64)
		if err == nil && total > uint64(len(response.Rows)) {
			return nil, fmt.Errorf("%w: result truncated: got %d of %s rows", ErrMalformedResult, len(response.Rows), response.TotalRows)
		}
	}

	return response, nil
}

// withRetry runs one request function under the client's bounded
// exponential-backoff retry policy.
func (c *Client) withRetry(ctx context.Context, call func(context.Context) (*QueryResponse, error)) (*QueryResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := call(ctx)
		if err == nil {
			return response, nil
		}
		lastErr = err

		// Only transient store failures are worth retrying; auth and
		// malformed-result failures will not heal on their own.
		if !errors.Is(err, errTransient) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", c.opts.RetryAttempts, lastErr)
}

func (c *Client) runQuery(ctx context.Context, request *QueryRequest) (*QueryResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/queries", c.baseURL, c.projectID)
	return c.send(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
}

// fetchPage retrieves one continuation page via jobs.getQueryResults.
func (c *Client) fetchPage(ctx context.Context, ref JobReference, pageToken string) (*QueryResponse, error) {
	if ref.JobID == "" {
		return nil, fmt.Errorf("%w: paginated response carries no job reference", ErrMalformedResult)
	}
	projectID := ref.ProjectID
	if projectID == "" {
		projectID = c.projectID
	}

	values := url.Values{}
	values.Set("pageToken", pageToken)
	if ref.Location != "" {
		values.Set("location", ref.Location)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/queries/%s?%s", c.baseURL, projectID, ref.JobID, values.Encode())
	return c.send(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader) (*QueryResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	httpClient, err := c.authClient.AuthenticatedHTTPClient(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build query request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, transientStoreError("%v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, transientStoreError("BigQuery returned status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: BigQuery returned status %d: %s", ErrStoreUnavailable, resp.StatusCode, resp.Status)
	}

	var response QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, response.Errors[0].Message)
	}
	if !response.JobComplete {
		// Synchronous queries with our window sizes finish within the request
		// timeout; an incomplete job means the store is overloaded.
		return nil, transientStoreError("query job did not complete within %s", c.opts.RequestTimeout)
	}

	return &response, nil
}
