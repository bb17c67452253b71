package messagepipeline

import (
	"context"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// --- Consumer ---

// MessageConsumer is a broker subscription feeding the sink pipeline.
type MessageConsumer interface {
	// Messages returns the channel pipeline workers receive from. It is closed
	// once the consumer has stopped.
	Messages() <-chan Message
	// Start begins consumption in the background.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for the background goroutine.
	Stop(ctx context.Context) error
	// Done is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// --- Transformer ---

// MessageTransformer turns a Message into a payload of type T. Returning
// skip=true acks the message without processing it; an error nacks it.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// --- Processor ---

// ProcessableItem links a transformed payload with its original message so the
// processor can ack or nack it.
type ProcessableItem[T any] struct {
	Original Message
	Payload  *T
}

// BatchProcessor handles a batch of transformed messages. It owns the ack/nack
// decision for every item; a returned error is only logged.
type BatchProcessor[T any] func(ctx context.Context, batch []ProcessableItem[T]) error

// --- Publisher ---

// RecordPublisher writes destination records to their topics. Publish returns
// once the broker has confirmed every record, or with the first failure.
type RecordPublisher interface {
	Publish(ctx context.Context, records ...types.DestinationRecord) error
	// Stop flushes pending writes and releases broker connections.
	Stop(ctx context.Context) error
}
