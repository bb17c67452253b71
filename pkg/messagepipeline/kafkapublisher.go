package messagepipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// kafkaWriter is the subset of *kafkago.Writer the publisher uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes records to the topic named on each record. Records with
// a key are hash-partitioned on it.
type KafkaPublisher struct {
	writer kafkaWriter
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher for brokers. Writes wait for all in-sync
// replicas.
func NewKafkaPublisher(brokers []string, clientID string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	if clientID != "" {
		w.Transport = &kafkago.Transport{ClientID: clientID}
	}
	return newKafkaPublisher(w, logger), nil
}

func newKafkaPublisher(w kafkaWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger.With().Str("component", "KafkaPublisher").Logger()}
}

// Publish writes records in one WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, records ...types.DestinationRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(records))
	for _, rec := range records {
		msg, err := toKafkaMessage(rec)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write of %d records: %w", len(msgs), err)
	}
	p.logger.Debug().Int("count", len(msgs)).Msg("Records published")
	return nil
}

func (p *KafkaPublisher) Stop(_ context.Context) error {
	return p.writer.Close()
}

func toKafkaMessage(rec types.DestinationRecord) (kafkago.Message, error) {
	if rec.Topic == "" {
		return kafkago.Message{}, fmt.Errorf("record has no topic")
	}
	value, err := rec.ValueBytes()
	if err != nil {
		return kafkago.Message{}, err
	}
	headers := make([]kafkago.Header, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return kafkago.Message{
		Topic:   rec.Topic,
		Key:     rec.Key,
		Value:   value,
		Headers: headers,
		Time:    rec.Timestamp,
	}, nil
}
