package httpexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
)

// RequestExecutor performs one HTTP call. 4xx and 5xx statuses are returned as
// Responses; only transport level failures are errors. Implementations must not
// modify req.
type RequestExecutor interface {
	Execute(ctx context.Context, req types.Request) (types.Response, error)
}

// ExecutorFunc adapts a function to RequestExecutor.
type ExecutorFunc func(ctx context.Context, req types.Request) (types.Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req types.Request) (types.Response, error) {
	return f(ctx, req)
}

// HTTPExecutorConfig holds settings for the base transport.
type HTTPExecutorConfig struct {
	// Timeout bounds a whole call, including reading the body.
	Timeout time.Duration
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// NewHTTPExecutorDefaults provides a config with sensible defaults.
func NewHTTPExecutorDefaults() HTTPExecutorConfig {
	return HTTPExecutorConfig{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 32 << 20,
	}
}

// HTTPExecutor is the net/http backed RequestExecutor.
type HTTPExecutor struct {
	client       *http.Client
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewHTTPExecutor creates an executor. A nil client gets a fresh one; the
// configured timeout is applied to every call through the request context.
func NewHTTPExecutor(cfg HTTPExecutorConfig, client *http.Client, logger zerolog.Logger) *HTTPExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = NewHTTPExecutorDefaults().Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = NewHTTPExecutorDefaults().MaxBodyBytes
	}
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.Timeout = cfg.Timeout
	return &HTTPExecutor{
		client:       &c,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger.With().Str("component", "HTTPExecutor").Logger(),
	}
}

// Execute sends req and reads the full response body.
func (e *HTTPExecutor) Execute(ctx context.Context, req types.Request) (types.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body.Bytes())
	}
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return types.Response{}, &types.ExecutionError{URL: req.URL, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" && req.Body.ContentType() != "" {
		httpReq.Header.Set("Content-Type", req.Body.ContentType())
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return types.Response{}, &types.ExecutionError{URL: req.URL, Err: fmt.Errorf("timed out after %s: %w", time.Since(start).Round(time.Millisecond), err)}
		}
		return types.Response{}, &types.ExecutionError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes+1))
	if err != nil {
		return types.Response{}, &types.ExecutionError{URL: req.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > e.maxBodyBytes {
		return types.Response{}, &types.ExecutionError{URL: req.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", e.maxBodyBytes)}
	}

	e.logger.Debug().
		Str("method", string(req.Method)).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request executed.")

	headers := types.CloneHeaders(resp.Header)
	return types.Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body: types.NewBytesPayload(data,
			types.WithHeaders(headers),
			types.WithStatusCode(resp.StatusCode),
		),
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
