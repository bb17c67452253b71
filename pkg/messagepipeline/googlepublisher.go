package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
)

// GooglePubsubPublisherConfig configures a GooglePubsubPublisher.
type GooglePubsubPublisherConfig struct {
	// EnableOrdering publishes record keys as ordering keys.
	EnableOrdering             bool
	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// NewGooglePubsubPublisherDefaults provides a config with sensible defaults.
func NewGooglePubsubPublisherDefaults() *GooglePubsubPublisherConfig {
	return &GooglePubsubPublisherConfig{
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// GooglePubsubPublisher publishes records to the Pub/Sub topic named on each
// record. Topics are checked for existence on first use and kept open until
// Stop.
type GooglePubsubPublisher struct {
	client *pubsub.Client
	cfg    *GooglePubsubPublisherConfig
	logger zerolog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewGooglePubsubPublisher creates a publisher on client.
func NewGooglePubsubPublisher(cfg *GooglePubsubPublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	defaults := NewGooglePubsubPublisherDefaults()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = defaults.TopicExistsTimeout
	}
	if cfg.PublishConfirmationTimeout <= 0 {
		cfg.PublishConfirmationTimeout = defaults.PublishConfirmationTimeout
	}
	return &GooglePubsubPublisher{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "GooglePubsubPublisher").Logger(),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends every record and waits for the server to confirm each one.
func (p *GooglePubsubPublisher) Publish(ctx context.Context, records ...types.DestinationRecord) error {
	results := make([]*pubsub.PublishResult, 0, len(records))
	for _, rec := range records {
		topic, err := p.topic(ctx, rec.Topic)
		if err != nil {
			return err
		}
		value, err := rec.ValueBytes()
		if err != nil {
			return err
		}
		msg := &pubsub.Message{Data: value, Attributes: rec.Headers}
		if p.cfg.EnableOrdering && len(rec.Key) > 0 {
			msg.OrderingKey = string(rec.Key)
		}
		results = append(results, topic.Publish(ctx, msg))
	}

	getCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishConfirmationTimeout)
	defer cancel()
	var errs []error
	for i, res := range results {
		msgID, err := res.Get(getCtx)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", records[i].Topic, err))
			continue
		}
		p.logger.Debug().Str("published_msg_id", msgID).Str("topic_id", records[i].Topic).Msg("Record published")
	}
	return errors.Join(errs...)
}

func (p *GooglePubsubPublisher) topic(ctx context.Context, id string) (*pubsub.Topic, error) {
	if id == "" {
		return nil, fmt.Errorf("record has no topic")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[id]; ok {
		return t, nil
	}

	t := p.client.Topic(id)
	existsCtx, cancel := context.WithTimeout(ctx, p.cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := t.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", id)
	}
	t.EnableMessageOrdering = p.cfg.EnableOrdering
	p.topics[id] = t
	return t, nil
}

// Stop flushes every open topic, respecting the context's timeout.
func (p *GooglePubsubPublisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	topics := make([]*pubsub.Topic, 0, len(p.topics))
	for _, t := range p.topics {
		topics = append(topics, t)
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()

	stopDone := make(chan struct{})
	go func() {
		for _, t := range topics {
			t.Stop()
		}
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
