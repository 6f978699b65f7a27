package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"whale-futures/observability"
)

// apiKeyHeader carries the internal API key on every proxy request
const apiKeyHeader = "x-api-key"

// maxBodyBytes bounds how much of a response body is read
const maxBodyBytes = 16 << 20

// KeyProvider supplies the internal API key; an empty key is omitted
type KeyProvider interface {
	APIKey() string
}

// KeyFunc adapts a function to KeyProvider
type KeyFunc func() string

func (f KeyFunc) APIKey() string { return f() }

// envelope is the common shape of proxy responses
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// proxyClient performs JSON calls against the backend proxy
type proxyClient struct {
	httpClient *http.Client
	keys       KeyProvider
}

func newProxyClient(timeout time.Duration, keys KeyProvider) *proxyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if keys == nil {
		keys = KeyFunc(func() string { return "" })
	}
	return &proxyClient{
		httpClient: &http.Client{Timeout: timeout},
		keys:       keys,
	}
}

// getJSON issues GET endpoint?params and decodes the body into out
func (c *proxyClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	target, err := withQuery(endpoint, params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// postJSON issues POST endpoint?params with a JSON body and decodes the
// response into out
func (c *proxyClient) postJSON(ctx context.Context, endpoint string, params url.Values, body, out any) error {
	target, err := withQuery(endpoint, params)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *proxyClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if key := c.keys.APIKey(); key != "" {
		req.Header.Set(apiKeyHeader, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			statusErr.Message = env.Error
		}
		return statusErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		observability.Debug("undecodable proxy response",
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
			"bytes", len(body))
		return fmt.Errorf("%w: HTTP %d: %w", ErrMalformedResponse, resp.StatusCode, err)
	}
	return nil
}

// withQuery merges params into any query string already on endpoint
func withQuery(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// callExternal runs fn through the named breaker and records request,
// duration and error metrics
func callExternal[T any](ctx context.Context, breaker, operation string, fn func() (T, error)) (T, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(breaker, operation)
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, breaker, fn)

	timer.ObserveExternalAPI(breaker, operation)
	if err != nil {
		metrics.RecordExternalAPIError(breaker, operation, categorizeAPIError(err))
	}
	return result, err
}
