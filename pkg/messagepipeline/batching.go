package messagepipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// BatchingServiceConfig holds the configuration for a BatchingService.
type BatchingServiceConfig struct {
	NumWorkers    int
	BatchSize     int
	FlushInterval time.Duration
	// Clock drives the flush ticker. Defaults to the real clock.
	Clock clockwork.Clock
}

// NewBatchingServiceDefaults returns a config with a small worker pool.
func NewBatchingServiceDefaults() BatchingServiceConfig {
	return BatchingServiceConfig{
		NumWorkers:    4,
		BatchSize:     50,
		FlushInterval: 500 * time.Millisecond,
		Clock:         clockwork.NewRealClock(),
	}
}

// BatchingService consumes messages, transforms them on a worker pool, groups
// the results into batches and hands each batch to a BatchProcessor. A batch is
// flushed when it reaches BatchSize, when FlushInterval elapses, and once more
// when the consumer's channel closes.
type BatchingService[T any] struct {
	cfg         BatchingServiceConfig
	consumer    MessageConsumer
	transformer MessageTransformer[T]
	processor   BatchProcessor[T]
	logger      zerolog.Logger
	transformWg sync.WaitGroup
	batchWg     sync.WaitGroup
	batchChan   chan ProcessableItem[T]
}

// NewBatchingService creates a new, generic BatchingService.
func NewBatchingService[T any](
	cfg BatchingServiceConfig,
	consumer MessageConsumer,
	transformer MessageTransformer[T],
	processor BatchProcessor[T],
	logger zerolog.Logger,
) (*BatchingService[T], error) {
	if consumer == nil || transformer == nil || processor == nil {
		return nil, fmt.Errorf("consumer, transformer, and processor cannot be nil")
	}
	defaults := NewBatchingServiceDefaults()
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = defaults.NumWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}

	return &BatchingService[T]{
		cfg:         cfg,
		consumer:    consumer,
		transformer: transformer,
		processor:   processor,
		logger:      logger.With().Str("service", "BatchingService").Logger(),
		batchChan:   make(chan ProcessableItem[T], cfg.BatchSize*cfg.NumWorkers),
	}, nil
}

// Start starts the consumer and the worker goroutines. It does not block.
func (s *BatchingService[T]) Start(ctx context.Context) error {
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.batchWg.Add(1)
	go s.batchWorker(ctx)

	s.transformWg.Add(s.cfg.NumWorkers)
	for i := 0; i < s.cfg.NumWorkers; i++ {
		go s.transformWorker(ctx, i)
	}

	// batchChan has several writers; close it only after all of them exit.
	go func() {
		s.transformWg.Wait()
		close(s.batchChan)
	}()

	s.logger.Info().
		Int("workers", s.cfg.NumWorkers).
		Int("batch_size", s.cfg.BatchSize).
		Dur("flush_interval", s.cfg.FlushInterval).
		Msg("Batching service started.")
	return nil
}

// Stop stops the consumer and waits for the in-flight batch to be processed.
func (s *BatchingService[T]) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping batching service...")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}

	allDone := make(chan struct{})
	go func() {
		s.transformWg.Wait()
		s.batchWg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for workers to finish.")
		return ctx.Err()
	}

	s.logger.Info().Msg("Batching service stopped.")
	return nil
}

func (s *BatchingService[T]) transformWorker(ctx context.Context, workerID int) {
	defer s.transformWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				return
			}

			payload, skip, err := s.transformer(ctx, &msg)
			if err != nil {
				s.logger.Error().Err(err).Int("worker_id", workerID).Str("msg_id", msg.ID).Msg("Failed to transform message, Nacking.")
				msg.Nack()
				continue
			}
			if skip {
				s.logger.Debug().Str("msg_id", msg.ID).Msg("Transformer signaled to skip message, Acking.")
				msg.Ack()
				continue
			}

			s.batchChan <- ProcessableItem[T]{Original: msg, Payload: payload}
		}
	}
}

func (s *BatchingService[T]) batchWorker(ctx context.Context) {
	defer s.batchWg.Done()

	batch := make([]ProcessableItem[T], 0, s.cfg.BatchSize)
	ticker := s.cfg.Clock.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		s.logger.Debug().Int("batch_size", len(batch)).Msg("Flushing batch.")
		if err := s.processor(flushCtx, batch); err != nil {
			s.logger.Error().Err(err).Msg("Batch processor failed. Message Ack/Nack is handled by the processor function.")
		}
		batch = make([]ProcessableItem[T], 0, s.cfg.BatchSize)
		ticker.Reset(s.cfg.FlushInterval)
	}

	for {
		select {
		case item, ok := <-s.batchChan:
			if !ok {
				// The final batch is delivered even when shutdown cancelled ctx.
				flush(context.WithoutCancel(ctx))
				return
			}
			batch = append(batch, item)
			if len(batch) >= s.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.Chan():
			flush(ctx)
		}
	}
}
