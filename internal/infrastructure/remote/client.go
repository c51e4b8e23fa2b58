// Package remote is the HTTP client for the POS server API. Every failure it
// returns is a *shared.RemoteError classified by status code, so callers can
// decide between retrying later and dropping a queued write.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server error codes with a meaning of their own
const (
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeNotFound        = "NOT_FOUND"

	// CodeResponseTooLarge is raised locally for a body over MaxResponseBytes
	CodeResponseTooLarge = "RESPONSE_TOO_LARGE"
)

// Client talks to the POS server
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	maxBody    int64
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default instrumented http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records call latency
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for cfg.BaseURL
func New(cfg config.RemoteConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = 8 << 20
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxBody: maxBody,
		logger:  zap.NewNop(),
		token:   cfg.Token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token handed over by the session collaborator
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// envelope is the server's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health checks that the server answers. Any 2xx counts.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// do sends one request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &shared.RemoteError{Kind: shared.FailureValidation, Message: "cannot encode request", Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &shared.RemoteError{Kind: shared.FailureValidation, Message: "cannot build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordRemoteCall(ctx, method, 0, time.Since(start))
		return &shared.RemoteError{Kind: shared.FailureTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordRemoteCall(ctx, method, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	oversized := int64(len(raw)) > c.maxBody
	if oversized {
		raw = raw[:c.maxBody]
	}

	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		var code, msg string
		if env.Error != nil {
			code, msg = env.Error.Code, env.Error.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		rerr := Classify(resp.StatusCode, code, msg)
		c.logger.Debug("remote call rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(rerr.Kind)),
			zap.String("code", code),
		)
		return rerr
	}

	// Oversized success bodies are rejected, not retried
	if oversized {
		c.logger.Warn("remote response over size limit",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int64("limit", c.maxBody),
		)
		return &shared.RemoteError{
			Kind:       shared.FailureValidation,
			StatusCode: resp.StatusCode,
			Code:       CodeResponseTooLarge,
			Message:    fmt.Sprintf("response exceeds %d bytes", c.maxBody),
			Err:        shared.ErrInvalidInput,
		}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if env.Error != nil && !env.Success {
		return Classify(http.StatusUnprocessableEntity, env.Error.Code, env.Error.Message)
	}
	if rawOut, ok := out.(*json.RawMessage); ok {
		*rawOut = env.Data
		return nil
	}
	if err := decodeNormalized(env.Data, out); err != nil {
		return &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: resp.StatusCode, Message: "malformed response data", Err: err}
	}
	return nil
}

// Classify maps an error response to a failure kind:
// 409 with VERSION_CONFLICT is a version conflict, other 409/412/422 and 404
// are precondition failures, 401/403 permission, 400 and other 4xx validation,
// 429 and 5xx transient.
func Classify(status int, code, message string) *shared.RemoteError {
	e := &shared.RemoteError{StatusCode: status, Code: code, Message: message}
	switch {
	case status == http.StatusConflict && code == CodeVersionConflict:
		e.Kind = shared.FailureVersionConflict
		e.Err = shared.ErrConcurrencyConflict
	case status == http.StatusNotFound:
		e.Kind = shared.FailurePrecondition
		if e.Code == "" {
			e.Code = CodeNotFound
		}
		e.Err = shared.ErrNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed, status == http.StatusUnprocessableEntity:
		e.Kind = shared.FailurePrecondition
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind = shared.FailurePermission
	case status == http.StatusTooManyRequests, status >= 500:
		e.Kind = shared.FailureTransient
	default:
		e.Kind = shared.FailureValidation
	}
	return e
}
