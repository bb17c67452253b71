package converter

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// PayloadToSourceRecordConverter turns a polled HTTP response payload into zero
// or more destination records. Topics are left empty; routing happens later.
type PayloadToSourceRecordConverter interface {
	Convert(ctx context.Context, payload types.Payload[[]byte]) ([]types.DestinationRecord, error)
}

// StringPayloadConverter emits exactly one record whose value is the body
// decoded as UTF-8 text.
type StringPayloadConverter struct{}

// Convert fails with a ConversionError when the body is not valid UTF-8.
func (StringPayloadConverter) Convert(_ context.Context, payload types.Payload[[]byte]) ([]types.DestinationRecord, error) {
	body := payload.Body()
	if !utf8.Valid(body) {
		return nil, &types.ConversionError{ID: "string payload", Err: errors.New("body is not valid UTF-8")}
	}
	return []types.DestinationRecord{{Value: string(body), Headers: recordHeaders(payload)}}, nil
}

// BytesPayloadConverter emits exactly one record carrying the body unchanged.
type BytesPayloadConverter struct{}

// Convert never fails.
func (BytesPayloadConverter) Convert(_ context.Context, payload types.Payload[[]byte]) ([]types.DestinationRecord, error) {
	body := payload.Body()
	if body == nil {
		body = []byte{}
	}
	return []types.DestinationRecord{{Value: body, Headers: recordHeaders(payload)}}, nil
}

func recordHeaders(p types.Payload[[]byte]) map[string]string {
	if ct := p.ContentType(); ct != "" {
		return map[string]string{"Content-Type": ct}
	}
	return nil
}
