// Package restsource polls an HTTP endpoint and turns each response into
// topic-routed destination records.
package restsource

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/converter"
	"github.com/illmade-knight/go-restbridge/pkg/httpexec"
	"github.com/illmade-knight/go-restbridge/pkg/selector"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Keys of the source partition and offset maps attached to every record.
const (
	PartitionKeyURL    = "url"
	OffsetKeyTimestamp = "timestamp"
	componentName      = "RestSourceTask"
)

// Task is a single REST source. Poll is not safe for concurrent use; the host
// is expected to call it from one goroutine.
type Task struct {
	logger     zerolog.Logger
	clock      clockwork.Clock
	client     *http.Client
	converters *converter.Registry
	selectors  *selector.Registry

	mu        sync.Mutex
	state     State
	cfg       *config.SourceConfig
	executor  httpexec.RequestExecutor
	converter converter.PayloadToSourceRecordConverter
	selector  selector.TopicSelector
	request   types.Request
}

// Option customises a Task.
type Option func(*Task)

// WithClock replaces the wall clock used for record timestamps and offsets.
func WithClock(c clockwork.Clock) Option {
	return func(t *Task) { t.clock = c }
}

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

// WithSelectorRegistry resolves topic.selector against r.
func WithSelectorRegistry(r *selector.Registry) Option {
	return func(t *Task) { t.selectors = r }
}

// NewTask creates an unstarted task.
func NewTask(logger zerolog.Logger, opts ...Option) *Task {
	t := &Task{
		logger:     logger.With().Str("component", componentName).Logger(),
		clock:      clockwork.NewRealClock(),
		converters: converter.Default,
		selectors:  selector.Default,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start parses props and resolves the converter, selector and executor. Every
// failure is a *types.ConfigurationError.
func (t *Task) Start(props map[string]string) error {
	cfg, err := config.LoadSource(config.Properties(props))
	if err != nil {
		return err
	}
	method, err := types.ParseMethod(string(cfg.Method))
	if err != nil {
		return &types.ConfigurationError{Key: config.KeyMethod, Value: string(cfg.Method), Err: err}
	}
	conv, err := t.converters.NewSource(cfg.PayloadConverter)
	if err != nil {
		return err
	}
	sel, err := t.selectors.New(cfg.TopicSelector, *cfg)
	if err != nil {
		return err
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
	req := types.Request{Method: method, URL: cfg.URL}
	if cfg.Data != "" {
		body := types.NewBytesPayload([]byte(cfg.Data))
		req.Body = &body
	}
	t.cfg = cfg
	t.converter = conv
	t.selector = sel
	t.request = req
	t.state = StateIdle

	t.logger.Info().
		Str("url", cfg.URL).
		Str("method", string(method)).
		Strs("topics", cfg.Topics).
		Str("converter", cfg.PayloadConverter).
		Str("selector", cfg.TopicSelector).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Source task started")
	return nil
}

// Config returns the parsed configuration, or nil before Start.
func (t *Task) Config() *config.SourceConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// PollInterval is the configured poll.interval.ms.
func (t *Task) PollInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg == nil {
		return config.DefaultPollInterval
	}
	return t.cfg.PollInterval
}

// State reports where the last poll got to.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Poll performs one request/convert/route cycle. On any error no records are
// returned:
//   - transport failures and retryable statuses give *types.ExecutionError
//   - other 4xx statuses give *types.PermanentError
//   - payloads the converter rejects give *types.ConversionError
//   - selector failures give *types.ConfigurationError
func (t *Task) Poll(ctx context.Context) ([]types.DestinationRecord, error) {
	t.mu.Lock()
	if t.cfg == nil {
		t.mu.Unlock()
		return nil, &types.NotInitializedError{Component: componentName}
	}
	cfg, exec, conv, sel, req := t.cfg, t.executor, t.converter, t.selector, t.request
	t.mu.Unlock()
	defer t.transition(StateIdle)

	t.transition(StateRequestSent)
	resp, err := exec.Execute(ctx, req)
	if err != nil {
		if !types.IsRetryable(err) {
			err = &types.ExecutionError{URL: req.URL, Err: err}
		}
		return nil, err
	}
	t.transition(StateResponseReceived)
	if err := httpexec.CheckStatus(req, resp); err != nil {
		return nil, err
	}

	converted, err := conv.Convert(ctx, resp.Body)
	if err != nil {
		if !types.IsConversion(err) {
			err = &types.ConversionError{ID: req.URL, Err: err}
		}
		return nil, fmt.Errorf("poll %s: %w", req.URL, err)
	}
	t.transition(StateConverted)

	now := t.clock.Now()
	offset := strconv.FormatInt(now.UnixMilli(), 10)
	out := make([]types.DestinationRecord, 0, len(converted)*len(cfg.Topics))
	for _, rec := range converted {
		topics, err := sel.Select(cfg.Topics, rec)
		if err != nil {
			return nil, &types.ConfigurationError{Key: config.KeyTopicSelector, Value: cfg.TopicSelector, Err: err}
		}
		if len(topics) == 0 {
			t.logger.Debug().Str("url", req.URL).Msg("Record dropped by topic selector")
			continue
		}
		for _, topic := range topics {
			r := rec.WithTopic(topic)
			r.Timestamp = now
			r.SourcePartition = map[string]string{PartitionKeyURL: req.URL}
			r.SourceOffset = map[string]string{OffsetKeyTimestamp: offset}
			out = append(out, r)
		}
	}
	t.transition(StateRouted)
	return out, nil
}

func (t *Task) transition(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	t.logger.Debug().Stringer("from", prev).Stringer("to", s).Msg("State transition")
}
