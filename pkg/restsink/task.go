// Package restsink delivers consumed broker records to an HTTP endpoint, one
// request per record.
package restsink

import (
	"context"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/converter"
	"github.com/illmade-knight/go-restbridge/pkg/httpexec"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultContentType is sent when content.type is not configured.
const DefaultContentType = "text/plain; charset=utf-8"

const componentName = "RestSinkTask"

// Task is a single REST sink.
type Task struct {
	logger     zerolog.Logger
	client     *http.Client
	converters *converter.Registry

	mu          sync.RWMutex
	cfg         *config.SinkConfig
	method      types.Method
	contentType string
	executor    httpexec.RequestExecutor
	converter   converter.SinkRecordToPayloadConverter
}

// Option customises a Task.
type Option func(*Task)

// WithHTTPClient sets the client used by the executor built in Start.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Task) { t.client = c }
}

// WithExecutor bypasses the executor built from configuration.
func WithExecutor(e httpexec.RequestExecutor) Option {
	return func(t *Task) { t.executor = e }
}

// WithConverterRegistry resolves payload.converter against r.
func WithConverterRegistry(r *converter.Registry) Option {
	return func(t *Task) { t.converters = r }
}

// NewTask creates an unstarted task.
func NewTask(logger zerolog.Logger, opts ...Option) *Task {
	t := &Task{
		logger:     logger.With().Str("component", componentName).Logger(),
		converters: converter.Default,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start parses props, resolves and starts the converter and builds the
// executor.
func (t *Task) Start(props map[string]string) error {
	cfg, err := config.LoadSink(config.Properties(props))
	if err != nil {
		return err
	}
	method, err := types.ParseMethod(string(cfg.Method))
	if err != nil {
		return &types.ConfigurationError{Key: config.KeyMethod, Value: string(cfg.Method), Err: err}
	}
	conv, err := t.converters.NewSink(cfg.PayloadConverter)
	if err != nil {
		return err
	}
	if s, ok := conv.(converter.Starter); ok {
		if err := s.Start(*cfg); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.executor == nil {
		exec, err := httpexec.NewWithClient(cfg.HTTPConfig, t.client, t.logger)
		if err != nil {
			return err
		}
		t.executor = exec
	}
	t.cfg = cfg
	t.method = method
	t.converter = conv
	t.contentType = cfg.ContentType
	if t.contentType == "" {
		t.contentType = DefaultContentType
	}

	t.logger.Info().
		Str("url", cfg.URL).
		Str("method", string(method)).
		Str("converter", cfg.PayloadConverter).
		Msg("Sink task started")
	return nil
}

// Config returns the parsed configuration, or nil before Start.
func (t *Task) Config() *config.SinkConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Put delivers every record in batch. One record failing does not stop the
// others; all failures come back together as a *BatchError.
func (t *Task) Put(ctx context.Context, batch []types.InboundRecord) error {
	t.mu.RLock()
	started := t.cfg != nil
	t.mu.RUnlock()
	if !started {
		return &types.NotInitializedError{Component: componentName}
	}

	var failures []RecordFailure
	for _, rec := range batch {
		if err := t.deliver(ctx, rec); err != nil {
			t.logger.Warn().Err(err).Str("record", rec.ID()).Bool("retryable", types.IsRetryable(err)).Msg("Record delivery failed")
			failures = append(failures, RecordFailure{Record: rec, Err: err})
		}
	}
	if len(failures) > 0 {
		return &BatchError{Failures: failures}
	}
	return nil
}

func (t *Task) deliver(ctx context.Context, rec types.InboundRecord) error {
	t.mu.RLock()
	cfg, method, contentType, exec, conv := t.cfg, t.method, t.contentType, t.executor, t.converter
	t.mu.RUnlock()

	payload, err := conv.Convert(ctx, rec)
	if err != nil {
		return err
	}
	body := types.NewBytesPayload(payload.Bytes(), types.WithContentType(contentType))
	req := types.Request{
		Method:  method,
		URL:     cfg.URL,
		Headers: map[string][]string{"Content-Type": {contentType}},
		Body:    &body,
	}

	resp, err := exec.Execute(ctx, req)
	if err != nil {
		if !types.IsRetryable(err) {
			err = &types.ExecutionError{URL: req.URL, Err: err}
		}
		return err
	}
	if err := httpexec.CheckStatus(req, resp); err != nil {
		return err
	}
	t.logger.Debug().Str("record", rec.ID()).Int("status", resp.StatusCode).Msg("Record delivered")
	return nil
}
