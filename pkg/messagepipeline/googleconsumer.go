package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// --- Google Cloud Pub/Sub Consumer Implementation ---

type GooglePubsubConsumerConfig struct {
	ProjectID      string
	SubscriptionID string
	// TopicName is reported as the record topic. Defaults to SubscriptionID.
	TopicName              string
	CredentialsFile        string // Optional
	MaxOutstandingMessages int
	NumGoroutines          int
	ExistsTimeout          time.Duration
}

// NewGooglePubsubConsumerDefaults returns a config for subID. A subscription is
// always required.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
		ExistsTimeout:          20 * time.Second,
	}
}

// GooglePubsubConsumer streams a Pub/Sub subscription into Messages. Pub/Sub
// has no offsets, so each delivery gets a sequence number local to the consumer.
type GooglePubsubConsumer struct {
	subscription       *pubsub.Subscription
	topicName          string
	logger             zerolog.Logger
	outputChan         chan Message
	seq                atomic.Int64
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

func NewGooglePubsubConsumer(cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	timeout := cfg.ExistsTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	existsCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	topicName := cfg.TopicName
	if topicName == "" {
		topicName = cfg.SubscriptionID
	}
	bufferSize := cfg.MaxOutstandingMessages
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &GooglePubsubConsumer{
		subscription: sub,
		topicName:    topicName,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan Message, bufferSize),
		doneChan:     make(chan struct{}),
	}, nil
}

func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.outputChan }

func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel
	go func() {
		defer close(c.doneChan)
		defer close(c.outputChan)

		c.logger.Info().Msg("Pub/Sub Receive goroutine started.")
		err := c.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			payloadCopy := make([]byte, len(msg.Data))
			copy(payloadCopy, msg.Data)

			var key []byte
			if msg.OrderingKey != "" {
				key = []byte(msg.OrderingKey)
			}
			consumed := Message{
				ID:          msg.ID,
				Topic:       c.topicName,
				Offset:      c.seq.Add(1),
				Key:         key,
				Payload:     payloadCopy,
				PublishTime: msg.PublishTime,
				Attributes:  msg.Attributes,
				Ack:         msg.Ack,
				Nack:        msg.Nack,
			}

			select {
			case c.outputChan <- consumed:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
		c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")
	}()
	return nil
}

func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancelSubscription != nil {
			c.cancelSubscription()
		} else {
			close(c.outputChan)
			close(c.doneChan)
			return
		}
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for Pub/Sub receive to stop: %w", ctx.Err())
		}
	})
	return err
}

func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }
