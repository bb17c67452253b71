package types

import (
	"fmt"
	"time"
)

// DestinationRecord is a record headed for a broker topic.
type DestinationRecord struct {
	// Topic is empty on converter output and filled in once the selector has run.
	Topic string
	Key   []byte
	// Value is either a string or a []byte, depending on the converter.
	Value     any
	Timestamp time.Time
	Headers   map[string]string

	// SourcePartition and SourceOffset identify where the record was read from,
	// e.g. the polled URL and the poll time.
	SourcePartition map[string]string
	SourceOffset    map[string]string
}

// ValueBytes serialises Value for the wire.
func (r DestinationRecord) ValueBytes() ([]byte, error) {
	switch v := r.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("record value for topic %q has unsupported type %T", r.Topic, r.Value)
	}
}

// WithTopic returns a copy of the record routed to topic.
func (r DestinationRecord) WithTopic(topic string) DestinationRecord {
	out := r
	out.Topic = topic
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// InboundRecord is a record consumed from the broker on its way to an HTTP endpoint.
type InboundRecord struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string]string
	// Schema names the value schema when the broker supplies one.
	Schema string
}

// ID identifies the record in logs and errors.
func (r InboundRecord) ID() string {
	return fmt.Sprintf("%s/%d/%d", r.Topic, r.Partition, r.Offset)
}
