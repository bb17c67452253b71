package connect

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Broker types accepted in config.BrokerConfig.Type.
const (
	BrokerKafka  = "kafka"
	BrokerPubsub = "pubsub"
)

// NewRecordPublisher builds the publisher for the configured broker. The
// returned close function releases the broker client and must be called after
// the publisher has been stopped.
func NewRecordPublisher(ctx context.Context, cfg config.BrokerConfig, logger zerolog.Logger) (messagepipeline.RecordPublisher, func() error, error) {
	switch cfg.Type {
	case BrokerKafka:
		p, err := messagepipeline.NewKafkaPublisher(cfg.Brokers, cfg.ClientID, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, noClose, nil
	case BrokerPubsub:
		client, err := newPubsubClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		p, err := messagepipeline.NewGooglePubsubPublisher(messagepipeline.NewGooglePubsubPublisherDefaults(), client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return p, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported broker type %q", cfg.Type)
	}
}

// NewMessageConsumer builds the consumer for the configured broker.
func NewMessageConsumer(ctx context.Context, cfg config.BrokerConfig, logger zerolog.Logger) (messagepipeline.MessageConsumer, func() error, error) {
	switch cfg.Type {
	case BrokerKafka:
		c, err := messagepipeline.NewKafkaConsumer(messagepipeline.NewKafkaConsumerDefaults(cfg.Brokers, cfg.GroupID, cfg.Topics), logger)
		if err != nil {
			return nil, nil, err
		}
		return c, noClose, nil
	case BrokerPubsub:
		client, err := newPubsubClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
		consumerCfg.ProjectID = cfg.ProjectID
		consumerCfg.CredentialsFile = cfg.CredentialsFile
		if len(cfg.Topics) > 0 {
			consumerCfg.TopicName = cfg.Topics[0]
		}
		c, err := messagepipeline.NewGooglePubsubConsumer(consumerCfg, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return c, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported broker type %q", cfg.Type)
	}
}

func newPubsubClient(ctx context.Context, cfg config.BrokerConfig) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return client, nil
}

func noClose() error { return nil }
