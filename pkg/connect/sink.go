package connect

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/observability"
	"github.com/illmade-knight/go-restbridge/pkg/restsink"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Headers added to dead-lettered records.
const (
	HeaderDeadLetterError  = "restbridge.error"
	HeaderDeadLetterSource = "restbridge.source"
	HeaderDeadLetterStatus = "restbridge.status"
)

const maxRetryBackoff = 5 * time.Second

// ErrRetriesExhausted marks dead-lettered records whose failure was retryable.
var ErrRetriesExhausted = errors.New("retries exhausted")

// SinkTask is the part of restsink.Task the runner needs.
type SinkTask interface {
	Put(ctx context.Context, batch []types.InboundRecord) error
}

// SinkRunnerConfig configures a SinkRunner.
type SinkRunnerConfig struct {
	NumWorkers      int
	BatchSize       int
	FlushInterval   time.Duration
	MaxPayloadBytes int
	// MaxRetries is how often retryable records are re-put before being nacked.
	MaxRetries   int
	RetryBackoff time.Duration
	// DeadLetterTopic receives permanently failed records. Empty disables it.
	DeadLetterTopic string
}

// SinkRunner feeds consumed messages to a SinkTask in batches.
//
// Per record: delivered records are acked; permanently failed records are
// published to the dead-letter topic (when set) and acked; retryable records are
// put again with exponential backoff up to MaxRetries and then dead-lettered,
// or nacked when there is no dead-letter topic.
type SinkRunner struct {
	cfg        SinkRunnerConfig
	task       SinkTask
	deadLetter messagepipeline.RecordPublisher
	service    *messagepipeline.BatchingService[types.InboundRecord]
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     zerolog.Logger
	ready      atomic.Bool
}

// SinkOption customises a SinkRunner.
type SinkOption func(*SinkRunner)

// WithSinkClock replaces the clock used for batching and retry backoff.
func WithSinkClock(c clockwork.Clock) SinkOption {
	return func(r *SinkRunner) { r.clock = c }
}

// WithSinkMetrics records delivery outcomes in m.
func WithSinkMetrics(m *observability.Metrics) SinkOption {
	return func(r *SinkRunner) { r.metrics = m }
}

// WithDeadLetter publishes permanently failed records through p.
func WithDeadLetter(p messagepipeline.RecordPublisher) SinkOption {
	return func(r *SinkRunner) { r.deadLetter = p }
}

// NewSinkRunner wires consumer, the payload size guard and task into a
// BatchingService.
func NewSinkRunner(cfg SinkRunnerConfig, consumer messagepipeline.MessageConsumer, task SinkTask, logger zerolog.Logger, opts ...SinkOption) (*SinkRunner, error) {
	if task == nil {
		return nil, fmt.Errorf("sink task cannot be nil")
	}
	r := &SinkRunner{
		cfg:     cfg,
		task:    task,
		clock:   clockwork.NewRealClock(),
		metrics: observability.NewMetricsForTesting(),
		logger:  logger.With().Str("component", "SinkRunner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.DeadLetterTopic != "" && r.deadLetter == nil {
		return nil, fmt.Errorf("dead letter topic %q configured without a publisher", cfg.DeadLetterTopic)
	}
	if r.cfg.RetryBackoff <= 0 {
		r.cfg.RetryBackoff = 200 * time.Millisecond
	}

	transformer := messagepipeline.MessageTransformer[types.InboundRecord](messagepipeline.InboundRecordTransformer)
	if cfg.MaxPayloadBytes > 0 {
		transformer = messagepipeline.WithPayloadValidation(transformer, 0, cfg.MaxPayloadBytes, r.logger)
	}
	svc, err := messagepipeline.NewBatchingService(messagepipeline.BatchingServiceConfig{
		NumWorkers:    cfg.NumWorkers,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Clock:         r.clock,
	}, consumer, transformer, r.ProcessBatch, logger)
	if err != nil {
		return nil, err
	}
	r.service = svc
	return r, nil
}

// Start begins consuming.
func (r *SinkRunner) Start(ctx context.Context) error {
	if err := r.service.Start(ctx); err != nil {
		return err
	}
	r.metrics.ConnectorUp.Set(1)
	r.ready.Store(true)
	return nil
}

// Stop stops consuming and waits for the in-flight batch.
func (r *SinkRunner) Stop(ctx context.Context) error {
	r.ready.Store(false)
	r.metrics.ConnectorUp.Set(0)
	return r.service.Stop(ctx)
}

// Ready reports whether the runner is consuming.
func (r *SinkRunner) Ready() bool { return r.ready.Load() }

// ProcessBatch is the BatchProcessor behind the runner. Every item is acked or
// nacked before it returns.
func (r *SinkRunner) ProcessBatch(ctx context.Context, batch []messagepipeline.ProcessableItem[types.InboundRecord]) error {
	pending := batch
	backoff := r.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		records := make([]types.InboundRecord, len(pending))
		for i, item := range pending {
			records[i] = *item.Payload
		}

		start := r.clock.Now()
		err := r.task.Put(ctx, records)
		r.metrics.PutDuration.Observe(r.clock.Since(start).Seconds())
		if err == nil {
			r.ackAll(pending, observability.OutcomeSuccess)
			return nil
		}

		var batchErr *restsink.BatchError
		if !errors.As(err, &batchErr) {
			r.nackAll(pending, observability.Outcome(err))
			return err
		}

		failures := make(map[string]restsink.RecordFailure, len(batchErr.Failures))
		for _, f := range batchErr.Failures {
			failures[f.Record.ID()] = f
		}
		var retry []messagepipeline.ProcessableItem[types.InboundRecord]
		for _, item := range pending {
			f, failed := failures[item.Payload.ID()]
			switch {
			case !failed:
				r.ack(item, observability.OutcomeSuccess)
			case f.Retryable():
				retry = append(retry, item)
			default:
				r.deadLetterOrDrop(ctx, item, f)
			}
		}

		if len(retry) == 0 {
			return nil
		}
		if ctx.Err() != nil {
			r.nackAll(retry, observability.OutcomeTransient)
			return batchErr
		}
		if attempt >= r.cfg.MaxRetries {
			r.retriesExhausted(ctx, retry, failures)
			return batchErr
		}
		r.logger.Warn().Int("records", len(retry)).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("Retrying transient delivery failures")
		select {
		case <-ctx.Done():
			r.nackAll(retry, observability.OutcomeTransient)
			return ctx.Err()
		case <-r.clock.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
		pending = retry
	}
}

// retriesExhausted dead-letters records that still fail after MaxRetries. With
// no dead-letter topic they are nacked; on Kafka that holds the partition's
// committed offset at the record so it is redelivered after a restart.
func (r *SinkRunner) retriesExhausted(ctx context.Context, items []messagepipeline.ProcessableItem[types.InboundRecord], failures map[string]restsink.RecordFailure) {
	if r.deadLetter == nil {
		r.logger.Error().Int("records", len(items)).Msg("Retries exhausted, Nacking")
		r.nackAll(items, observability.OutcomeTransient)
		return
	}
	for _, item := range items {
		f := failures[item.Payload.ID()]
		r.deadLetterOrDrop(ctx, item, restsink.RecordFailure{
			Record: f.Record,
			Err:    fmt.Errorf("%w: %w", ErrRetriesExhausted, f.Err),
		})
	}
}

func (r *SinkRunner) deadLetterOrDrop(ctx context.Context, item messagepipeline.ProcessableItem[types.InboundRecord], f restsink.RecordFailure) {
	outcome := observability.Outcome(f.Err)
	if r.deadLetter == nil {
		r.logger.Error().Err(f.Err).Str("record", item.Payload.ID()).Msg("Record permanently failed, dropping")
		r.ack(item, outcome)
		return
	}
	if err := r.deadLetter.Publish(ctx, r.deadLetterRecord(*item.Payload, f.Err)); err != nil {
		r.logger.Error().Err(err).Str("record", item.Payload.ID()).Msg("Dead letter publish failed, Nacking")
		r.nack(item, outcome)
		return
	}
	r.metrics.DeadLettered.Inc()
	r.ack(item, outcome)
}

func (r *SinkRunner) deadLetterRecord(rec types.InboundRecord, cause error) types.DestinationRecord {
	headers := make(map[string]string, len(rec.Headers)+3)
	for k, v := range rec.Headers {
		headers[k] = v
	}
	headers[HeaderDeadLetterError] = cause.Error()
	headers[HeaderDeadLetterSource] = rec.ID()
	var permErr *types.PermanentError
	var execErr *types.ExecutionError
	switch {
	case errors.As(cause, &permErr):
		headers[HeaderDeadLetterStatus] = fmt.Sprint(permErr.StatusCode)
	case errors.As(cause, &execErr) && execErr.StatusCode > 0:
		headers[HeaderDeadLetterStatus] = fmt.Sprint(execErr.StatusCode)
	}
	return types.DestinationRecord{
		Topic:     r.cfg.DeadLetterTopic,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: r.clock.Now(),
		Headers:   headers,
	}
}

func (r *SinkRunner) ack(item messagepipeline.ProcessableItem[types.InboundRecord], outcome string) {
	r.metrics.SinkRecords.WithLabelValues(outcome).Inc()
	item.Original.Ack()
}

func (r *SinkRunner) nack(item messagepipeline.ProcessableItem[types.InboundRecord], outcome string) {
	r.metrics.SinkRecords.WithLabelValues(outcome).Inc()
	item.Original.Nack()
}

func (r *SinkRunner) ackAll(items []messagepipeline.ProcessableItem[types.InboundRecord], outcome string) {
	for _, item := range items {
		r.ack(item, outcome)
	}
}

func (r *SinkRunner) nackAll(items []messagepipeline.ProcessableItem[types.InboundRecord], outcome string) {
	for _, item := range items {
		r.nack(item, outcome)
	}
}
