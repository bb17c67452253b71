package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// KafkaConsumerConfig configures a consumer-group reader.
type KafkaConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topics        []string
	MaxBytes      int
	CommitTimeout time.Duration
	BufferSize    int
}

// NewKafkaConsumerDefaults returns a config reading topics as group groupID.
func NewKafkaConsumerDefaults(brokers []string, groupID string, topics []string) *KafkaConsumerConfig {
	return &KafkaConsumerConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topics:        topics,
		MaxBytes:      10e6, // 10 MB
		CommitTimeout: 10 * time.Second,
		BufferSize:    100,
	}
}

// KafkaReader is the subset of *kafkago.Reader the consumer uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConsumer fetches from a consumer group without auto-commit. Acks may
// arrive in any order; per partition only the highest offset whose
// predecessors are all acked is committed. A nacked offset is never committed
// past, so it is redelivered after a restart or rebalance.
type KafkaConsumer struct {
	reader        KafkaReader
	logger        zerolog.Logger
	commitTimeout time.Duration
	offsets       *offsetTracker
	commitMu      sync.Mutex
	outputChan    chan Message
	stopOnce      sync.Once
	cancel        context.CancelFunc
	doneChan      chan struct{}
}

// NewKafkaConsumer creates a consumer for cfg.Topics.
func NewKafkaConsumer(cfg *KafkaConsumerConfig, logger zerolog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka group id cannot be empty")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka topics cannot be empty")
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    cfg.MaxBytes,
	})
	return NewKafkaConsumerWithReader(r, cfg, logger), nil
}

// NewKafkaConsumerWithReader creates a consumer over an existing reader.
func NewKafkaConsumerWithReader(r KafkaReader, cfg *KafkaConsumerConfig, logger zerolog.Logger) *KafkaConsumer {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	timeout := cfg.CommitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaConsumer{
		reader:        r,
		logger:        logger.With().Str("component", "KafkaConsumer").Str("group_id", cfg.GroupID).Logger(),
		commitTimeout: timeout,
		offsets:       newOffsetTracker(),
		outputChan:    make(chan Message, buffer),
		doneChan:      make(chan struct{}),
	}
}

func (c *KafkaConsumer) Messages() <-chan Message { return c.outputChan }

func (c *KafkaConsumer) Done() <-chan struct{} { return c.doneChan }

// Start runs the fetch loop until Stop or ctx is cancelled.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		defer close(c.doneChan)
		defer close(c.outputChan)

		backoff := 200 * time.Millisecond
		for {
			km, err := c.reader.FetchMessage(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info().Msg("Kafka fetch loop stopped.")
					return
				}
				c.logger.Error().Err(err).Dur("backoff", backoff).Msg("Kafka fetch failed")
				select {
				case <-fetchCtx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, 5*time.Second)
				continue
			}
			backoff = 200 * time.Millisecond
			c.offsets.fetched(km)

			select {
			case c.outputChan <- c.toMessage(km):
			case <-fetchCtx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels the fetch loop, waits for it and closes the reader.
func (c *KafkaConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			select {
			case <-c.doneChan:
			case <-ctx.Done():
				err = fmt.Errorf("waiting for kafka fetch loop to stop: %w", ctx.Err())
			}
		} else {
			close(c.outputChan)
			close(c.doneChan)
		}
		if closeErr := c.reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

func (c *KafkaConsumer) toMessage(km kafkago.Message) Message {
	attrs := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		attrs[h.Key] = string(h.Value)
	}
	id := km.Topic + "/" + strconv.Itoa(km.Partition) + "/" + strconv.FormatInt(km.Offset, 10)
	return Message{
		ID:          id,
		Topic:       km.Topic,
		Partition:   km.Partition,
		Offset:      km.Offset,
		Key:         km.Key,
		Payload:     km.Value,
		PublishTime: km.Time,
		Attributes:  attrs,
		Ack:  func() { c.ack(km, id) },
		Nack: func() {
			c.offsets.nack(km)
			c.logger.Warn().Str("msg_id", id).Msg("Message nacked, partition offsets held until restart or rebalance")
		},
	}
}

func (c *KafkaConsumer) ack(km kafkago.Message, id string) {
	// Commits are serialised so a slower, lower commit cannot land after a higher one.
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	commit, ok := c.offsets.ack(km)
	if !ok {
		return
	}
	commitCtx, cancel := context.WithTimeout(context.Background(), c.commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, commit); err != nil {
		c.logger.Warn().Err(err).Str("msg_id", id).Int64("commit_offset", commit.Offset).Msg("Commit offset failed")
	}
}
