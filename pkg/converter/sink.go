package converter

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// SinkRecordToPayloadConverter turns a consumed broker record into the body of
// an outbound HTTP request.
type SinkRecordToPayloadConverter interface {
	Convert(ctx context.Context, record types.InboundRecord) (types.Payload[string], error)
}

// Starter is implemented by converters that need one-time setup before their
// first Convert call.
type Starter interface {
	Start(cfg config.SinkConfig) error
}

// StringSinkConverter uses the record value, read as UTF-8 text, as the body.
type StringSinkConverter struct{}

// Convert fails with a ConversionError when the value is not valid UTF-8.
func (StringSinkConverter) Convert(_ context.Context, record types.InboundRecord) (types.Payload[string], error) {
	if !utf8.Valid(record.Value) {
		return types.Payload[string]{}, &types.ConversionError{ID: record.ID(), Err: errors.New("value is not valid UTF-8")}
	}
	return types.NewStringPayload(string(record.Value)), nil
}
