package messagepipeline

import (
	"context"

	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
)

// InboundRecordTransformer maps every message to a types.InboundRecord.
func InboundRecordTransformer(_ context.Context, msg *Message) (*types.InboundRecord, bool, error) {
	rec := ToInboundRecord(msg)
	return &rec, false, nil
}

// WithPayloadValidation wraps a MessageTransformer with a payload size check.
// Messages outside [minSize, maxSize] are skipped, and so acked, without
// reaching the inner transformer.
func WithPayloadValidation[T any](
	innerTransformer MessageTransformer[T],
	minSize int,
	maxSize int,
	logger zerolog.Logger,
) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		payloadLen := len(msg.Payload)
		if payloadLen < minSize || (maxSize > 0 && payloadLen > maxSize) {
			logger.Warn().Str("msg_id", msg.ID).Int("payload_size", payloadLen).Msg("Rejecting message due to invalid payload size.")
			return nil, true, nil
		}
		return innerTransformer(ctx, msg)
	}
}
