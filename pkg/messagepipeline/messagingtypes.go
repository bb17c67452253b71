package messagepipeline

import (
	"time"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// Message is the broker-neutral form of a consumed message. Kafka and Pub/Sub
// consumers both produce it; fields a broker does not have are left zero.
type Message struct {
	// ID is the broker's identifier: the Pub/Sub message id, or topic/partition/offset for Kafka.
	ID        string
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Payload   []byte

	// PublishTime is when the broker accepted the message.
	PublishTime time.Time

	// Attributes holds broker metadata: Pub/Sub attributes or Kafka headers.
	Attributes map[string]string

	// Ack signals that the message was handled and must not be redelivered.
	Ack func()

	// Nack signals that handling failed and the message should be redelivered.
	Nack func()
}

// ToInboundRecord is the default MessageTransformer for the sink direction.
// The optional "schema" attribute is carried over as the record schema.
func ToInboundRecord(msg *Message) types.InboundRecord {
	headers := make(map[string]string, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	return types.InboundRecord{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Payload,
		Timestamp: msg.PublishTime,
		Headers:   headers,
		Schema:    msg.Attributes[SchemaAttribute],
	}
}

// SchemaAttribute names the message attribute carrying the value schema.
const SchemaAttribute = "schema"
