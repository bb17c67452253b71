package types

import (
	"net/http"
	"strings"
)

// Body is the set of body representations a Payload can carry.
type Body interface {
	~string | ~[]byte
}

// Payload is an immutable envelope for an HTTP body plus its metadata.
// It is the interchange unit between the HTTP side of the bridge and the converters.
type Payload[T Body] struct {
	body        T
	headers     map[string][]string
	contentType string
	statusCode  int
}

// PayloadOption customises a Payload at construction time.
type PayloadOption func(*payloadMeta)

type payloadMeta struct {
	headers     map[string][]string
	contentType string
	statusCode  int
}

// WithHeaders attaches a copy of the given headers to the payload.
func WithHeaders(h map[string][]string) PayloadOption {
	return func(m *payloadMeta) { m.headers = CloneHeaders(h) }
}

// WithContentType sets the declared content type.
func WithContentType(ct string) PayloadOption {
	return func(m *payloadMeta) { m.contentType = ct }
}

// WithStatusCode records the HTTP status the payload was read from.
func WithStatusCode(code int) PayloadOption {
	return func(m *payloadMeta) { m.statusCode = code }
}

// NewPayload builds a Payload. A []byte body is copied so later changes to the
// caller's slice cannot leak into the envelope.
func NewPayload[T Body](body T, opts ...PayloadOption) Payload[T] {
	meta := payloadMeta{}
	for _, opt := range opts {
		opt(&meta)
	}
	if meta.contentType == "" && meta.headers != nil {
		meta.contentType = http.Header(meta.headers).Get("Content-Type")
	}
	return Payload[T]{
		body:        copyBody(body),
		headers:     meta.headers,
		contentType: meta.contentType,
		statusCode:  meta.statusCode,
	}
}

// NewStringPayload is shorthand for NewPayload[string].
func NewStringPayload(body string, opts ...PayloadOption) Payload[string] {
	return NewPayload(body, opts...)
}

// NewBytesPayload is shorthand for NewPayload[[]byte].
func NewBytesPayload(body []byte, opts ...PayloadOption) Payload[[]byte] {
	return NewPayload(body, opts...)
}

// Body returns the payload body. Byte bodies are returned as a copy.
func (p Payload[T]) Body() T { return copyBody(p.body) }

// Bytes returns the body as a fresh byte slice regardless of T.
func (p Payload[T]) Bytes() []byte { return []byte(string(p.body)) }

// Len is the body length in bytes.
func (p Payload[T]) Len() int { return len(p.body) }

// Headers returns a copy of the payload headers.
func (p Payload[T]) Headers() map[string][]string { return CloneHeaders(p.headers) }

// Header returns the first value for key, matched case-insensitively.
func (p Payload[T]) Header(key string) string { return http.Header(p.headers).Get(key) }

// ContentType is the declared content type, possibly empty.
func (p Payload[T]) ContentType() string { return p.contentType }

// StatusCode is the HTTP status the payload came from, or 0.
func (p Payload[T]) StatusCode() int { return p.statusCode }

// CloneHeaders deep-copies a header mapping. Keys are canonicalised.
func CloneHeaders(h map[string][]string) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, v := range h {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		out[key] = append(out[key], v...)
	}
	return out
}

func copyBody[T Body](b T) T {
	switch v := any(b).(type) {
	case []byte:
		if v == nil {
			return b
		}
		c := make([]byte, len(v))
		copy(c, v)
		return any(c).(T)
	default:
		return b
	}
}
