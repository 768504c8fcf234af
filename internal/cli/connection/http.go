package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/redolog-go/internal/infra/buildinfo"
	"github.com/yndnr/redolog-go/internal/server/httpserver/handler"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// APIError is a failed request as reported by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, msg)
	}
	if e.RequestID == "" {
		return fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s (request %s)", e.Code, msg, e.RequestID)
}

// HTTPClient calls the redolog-server ops API.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTLSConfig sets the TLS config used for https:// servers.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *HTTPClient) {
		c.client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: cfg,
		}
	}
}

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// NewHTTPClient returns a client for server, a host:port or URL. Plain
// host:port means http.
func NewHTTPClient(server string, opts ...ClientOption) *HTTPClient {
	base := strings.TrimRight(server, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &HTTPClient{
		baseURL:   base,
		userAgent: buildinfo.UserAgent("redolog-cli"),
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized server URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Health calls GET /healthz. An unhealthy server yields both the report
// and an *APIError with status 503.
func (c *HTTPClient) Health(ctx context.Context) (*handler.HealthResponse, error) {
	var out handler.HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return &out, err
}

// WALStatus calls GET /v1/wal/status.
func (c *HTTPClient) WALStatus(ctx context.Context) (*handler.WALStatusResponse, error) {
	var out handler.WALStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/wal/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkpoint calls POST /v1/wal/checkpoint.
func (c *HTTPClient) Checkpoint(ctx context.Context) (*handler.CheckpointResponse, error) {
	var out handler.CheckpointResponse
	if err := c.do(ctx, http.MethodPost, "/v1/wal/checkpoint", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, target any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return decode(resp, target)
}

// envelope mirrors handler.Response with the data left raw.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// decode unwraps the response envelope into target, which may be nil.
// Data is decoded even from a failed response when present.
func decode(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	envErr := json.NewDecoder(resp.Body).Decode(&env)

	if target != nil && envErr == nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}

	failed := resp.StatusCode >= 400 || (envErr == nil && env.Code != "" && env.Code != "OK")
	if failed {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		if envErr == nil {
			apiErr.Message = env.Message
			if env.Code != "OK" {
				apiErr.Code = env.Code
			}
			if env.RequestID != "" {
				apiErr.RequestID = env.RequestID
			}
		}
		if apiErr.Code == "" {
			apiErr.Code = resp.Header.Get("X-Error-Code")
		}
		return apiErr
	}
	if envErr != nil {
		return fmt.Errorf("parse response: %w", envErr)
	}
	return nil
}
