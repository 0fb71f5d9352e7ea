package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/unifi-ops/internal/logging"
)

// Client issues HTTP calls against the controller with rate limiting,
// bounded retries for idempotent methods, and error normalization. It is
// safe for concurrent use; one Client (and its RateBudget) is shared by all
// logical operations in the process.
type Client struct {
	http     *http.Client
	endpoint Endpoint
	budget   *RateBudget
	retry    RetryPolicy
}

// Options configures a Client.
type Options struct {
	Endpoint Endpoint

	// Timeout applies per network call (connect + read). Zero means 30s.
	Timeout time.Duration

	// RateCeiling / RateWindow define the request budget. A zero ceiling
	// disables budgeting (local gateways have no published ceiling).
	RateCeiling int
	RateWindow  time.Duration
	RateMaxWait time.Duration

	Retry RetryPolicy

	// HTTPClient overrides the underlying client, used by tests.
	HTTPClient *http.Client
}

// NewClient constructs a Client for the given endpoint.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == nil {
		return nil, NewError(KindConfiguration, "transport: endpoint is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if tlsCfg := opts.Endpoint.TLSConfig(); tlsCfg != nil {
			transport.TLSClientConfig = tlsCfg
		}
		httpClient = &http.Client{Transport: transport, Timeout: timeout}
	}

	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if retry.sleep == nil {
		retry.sleep = sleepCtx
	}

	var budget *RateBudget
	if opts.RateCeiling > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		budget = NewRateBudget(opts.RateCeiling, window, opts.RateMaxWait)
	}

	return &Client{
		http:     httpClient,
		endpoint: opts.Endpoint,
		budget:   budget,
		retry:    retry,
	}, nil
}

// Endpoint returns the configured endpoint strategy.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Response is a decoded controller reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v, failing fast on schema
// mismatch rather than passing raw maps deeper into the system.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return WrapError(KindServer, err, "decoding controller response")
	}
	return nil
}

// Do issues a request. Idempotent methods (GET, DELETE) are retried on
// transient failures per the retry policy; mutating methods are attempted
// exactly once, and an ambiguous outcome is reported as a timeout so the
// caller can re-validate state before retrying manually.
func (c *Client) Do(ctx context.Context, method, path string, body any, query url.Values) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, WrapError(KindValidation, err, "encoding request body")
		}
	}

	attempts := 1
	if idempotent(method) {
		attempts = c.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.once(ctx, method, path, payload, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == attempts || !retriable(err) {
			break
		}

		var retryAfter time.Duration
		var te *Error
		if errors.As(err, &te) {
			retryAfter = te.RetryAfter
		}
		logging.L().Warn("retrying request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err)
		if werr := c.retry.wait(ctx, attempt, retryAfter); werr != nil {
			return nil, WrapError(KindTimeout, werr, "%s %s: cancelled during backoff", method, path)
		}
	}
	return nil, lastErr
}

// once performs a single attempt: budget accounting, wire transfer, error
// normalization. The budget lock is released before the wire transfer. A
// 401 from a session-capable endpoint triggers one login and resend; the
// original request was rejected, so the resend cannot double-apply.
func (c *Client) once(ctx context.Context, method, path string, payload []byte, query url.Values) (*Response, error) {
	if err := c.budget.Acquire(ctx); err != nil {
		return nil, err
	}

	u := c.endpoint.URL(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	loginTried := false
	for {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
		if err != nil {
			return nil, WrapError(KindValidation, err, "building request %s %s", method, path)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Request-Id", uuid.NewString())
		c.endpoint.Authorize(req)

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, normalizeNetError(err, method, path)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, WrapError(KindServer, err, "reading response %s %s", method, path)
		}

		logging.L().Debug("api request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
		}

		if resp.StatusCode == http.StatusUnauthorized && !loginTried {
			if sa, ok := c.endpoint.(sessionAuthenticator); ok && sa.canLogin() {
				loginTried = true
				if err := sa.login(ctx, c.http); err != nil {
					return nil, err
				}
				continue
			}
		}
		return nil, normalizeAPIError(resp, body)
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, query)
}

// Post issues a POST request. Never retried.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, nil)
}

// Put issues a PUT request. Never retried.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, nil)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, query)
}

// Stream issues a GET and returns the raw body for the caller to consume,
// used for backup downloads. The caller must close the reader. Transient
// failures establishing the stream are retried; a broken stream mid-read is
// not.
func (c *Client) Stream(ctx context.Context, path string, query url.Values) (io.ReadCloser, http.Header, error) {
	u := c.endpoint.URL(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.budget.Acquire(ctx); err != nil {
			return nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, nil, WrapError(KindValidation, err, "building request GET %s", path)
		}
		req.Header.Set("Accept", "application/octet-stream")
		req.Header.Set("X-Request-Id", uuid.NewString())
		c.endpoint.Authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = normalizeNetError(err, http.MethodGet, path)
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, resp.Header, nil
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			lastErr = normalizeAPIError(resp, body)
		}

		if attempt == c.retry.MaxAttempts || !retriable(lastErr) {
			break
		}
		if werr := c.retry.wait(ctx, attempt, 0); werr != nil {
			return nil, nil, WrapError(KindTimeout, werr, "GET %s: cancelled during backoff", path)
		}
	}
	return nil, nil, lastErr
}

// errorBody matches the common controller error envelope. Both the cloud
// API and the local proxy use variations of these field names.
type errorBody struct {
	Code      string `json:"code"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	ErrorMsg  string `json:"error"`
	Detail    string `json:"detail"`
	RequestID string `json:"requestId"`
	TraceID   string `json:"traceId"`
}

// normalizeAPIError parses a non-2xx response into the typed taxonomy.
// Unparseable bodies map to a server error with the raw status preserved.
func normalizeAPIError(resp *http.Response, body []byte) error {
	e := &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Code = firstNonEmpty(parsed.Code, parsed.ErrorCode)
		e.Message = firstNonEmpty(parsed.Message, parsed.ErrorMsg, parsed.Detail)
		e.RequestID = firstNonEmpty(parsed.RequestID, parsed.TraceID)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("controller returned %s", resp.Status)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

// normalizeNetError classifies transport-level failures.
func normalizeNetError(err error, method, path string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapError(KindTimeout, err, "%s %s: request timed out", method, path)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindTimeout, err, "%s %s: request timed out", method, path)
	}
	return WrapError(KindServer, err, "%s %s: network error", method, path)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
