// Package connect hosts the source and sink tasks: it drives polling on a
// timer, moves records to and from the broker and applies the ack policy.
package connect

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-restbridge/pkg/observability"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// SourceTask is the part of restsource.Task the runner needs.
type SourceTask interface {
	Poll(ctx context.Context) ([]types.DestinationRecord, error)
	PollInterval() time.Duration
}

// SourceRunner polls a SourceTask at its poll interval and publishes the
// records. Transient, permanent and conversion failures are logged and the
// next poll still happens; a configuration error stops the runner.
type SourceRunner struct {
	task      SourceTask
	publisher messagepipeline.RecordPublisher
	dedupe    *Deduplicator
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    zerolog.Logger
	ready     atomic.Bool
}

// SourceOption customises a SourceRunner.
type SourceOption func(*SourceRunner)

// WithSourceClock replaces the clock driving the poll ticker.
func WithSourceClock(c clockwork.Clock) SourceOption {
	return func(r *SourceRunner) { r.clock = c }
}

// WithDeduplicator skips records whose value has not changed.
func WithDeduplicator(d *Deduplicator) SourceOption {
	return func(r *SourceRunner) { r.dedupe = d }
}

// WithSourceMetrics records poll outcomes in m.
func WithSourceMetrics(m *observability.Metrics) SourceOption {
	return func(r *SourceRunner) { r.metrics = m }
}

// NewSourceRunner creates a runner for a started task.
func NewSourceRunner(task SourceTask, publisher messagepipeline.RecordPublisher, logger zerolog.Logger, opts ...SourceOption) (*SourceRunner, error) {
	if task == nil {
		return nil, fmt.Errorf("source task cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("record publisher cannot be nil")
	}
	r := &SourceRunner{
		task:      task,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		metrics:   observability.NewMetricsForTesting(),
		logger:    logger.With().Str("component", "SourceRunner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ready reports whether at least one poll has completed successfully.
func (r *SourceRunner) Ready() bool { return r.ready.Load() }

// Run polls once immediately and then on every tick until ctx is cancelled.
// It returns nil on cancellation and the error for a configuration failure.
func (r *SourceRunner) Run(ctx context.Context) error {
	r.metrics.ConnectorUp.Set(1)
	defer r.metrics.ConnectorUp.Set(0)

	interval := r.task.PollInterval()
	r.logger.Info().Dur("poll_interval", interval).Msg("Source runner started")

	var ticks <-chan time.Time
	if interval > 0 {
		ticker := r.clock.NewTicker(interval)
		defer ticker.Stop()
		ticks = ticker.Chan()
	}

	for {
		if err := r.PollOnce(ctx); err != nil {
			return err
		}
		if ticks == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Source runner stopping")
			return nil
		case <-ticks:
		}
	}
}

// PollOnce runs a single poll-and-publish cycle. Only configuration errors
// are returned.
func (r *SourceRunner) PollOnce(ctx context.Context) error {
	start := r.clock.Now()
	records, err := r.task.Poll(ctx)
	r.metrics.PollDuration.Observe(r.clock.Since(start).Seconds())
	r.metrics.Polls.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		switch {
		case types.IsConfiguration(err):
			r.logger.Error().Err(err).Msg("Poll failed with configuration error, stopping")
			return err
		case ctx.Err() != nil:
		case types.IsRetryable(err):
			r.logger.Warn().Err(err).Msg("Poll failed, will retry on next tick")
		default:
			r.logger.Error().Err(err).Msg("Poll failed")
		}
		return nil
	}

	if r.dedupe != nil {
		filtered, err := r.dedupe.Filter(ctx, records)
		if err != nil {
			r.logger.Warn().Err(err).Msg("De-duplication cache unavailable, publishing anyway")
		}
		if filtered != nil {
			r.metrics.RecordsDeduped.Add(float64(len(records) - len(filtered)))
			records = filtered
		}
	}
	if len(records) == 0 {
		r.ready.Store(true)
		return nil
	}

	if err := r.publisher.Publish(ctx, records...); err != nil {
		r.logger.Error().Err(err).Int("records", len(records)).Msg("Publish failed, records dropped until the next poll")
		return nil
	}
	for _, rec := range records {
		r.metrics.RecordsEmitted.WithLabelValues(rec.Topic).Inc()
	}
	if r.dedupe != nil {
		if err := r.dedupe.Commit(ctx, records); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to store record digests")
		}
	}
	r.ready.Store(true)
	r.logger.Debug().Int("records", len(records)).Msg("Poll published")
	return nil
}
