package types

import (
	"fmt"
	"net/http"
	"strings"
)

// Method is an HTTP method the bridge is allowed to issue.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodPut     Method = http.MethodPut
	MethodDelete  Method = http.MethodDelete
	MethodTrace   Method = http.MethodTrace
)

// Methods returns the supported methods in their canonical order.
func Methods() []Method {
	return []Method{MethodGet, MethodPost, MethodHead, MethodOptions, MethodPut, MethodDelete, MethodTrace}
}

// ParseMethod resolves a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, valid := range Methods() {
		if m == valid {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported HTTP method %q, expected one of %v", s, Methods())
}

// Request describes one outbound HTTP call. Treat it as a value: decorators
// work on a Clone and never modify the caller's copy.
type Request struct {
	Method  Method
	URL     string
	Headers map[string][]string
	Body    *Payload[[]byte]
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	out := Request{
		Method:  r.Method,
		URL:     r.URL,
		Headers: CloneHeaders(r.Headers),
	}
	if out.Headers == nil {
		out.Headers = make(map[string][]string)
	}
	if r.Body != nil {
		b := *r.Body
		out.Body = &b
	}
	return out
}

// WithHeader returns a copy of the request with key set to value.
func (r Request) WithHeader(key, value string) Request {
	out := r.Clone()
	out.Headers[http.CanonicalHeaderKey(key)] = []string{value}
	return out
}

// Response is the result of executing a Request.
type Response struct {
	StatusCode int
	Headers    map[string][]string
	Body       Payload[[]byte]
}

// IsSuccess reports a 2xx status.
func (r Response) IsSuccess() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// IsClientError reports a 4xx status.
func (r Response) IsClientError() bool { return r.StatusCode >= 400 && r.StatusCode < 500 }

// IsServerError reports a 5xx status.
func (r Response) IsServerError() bool { return r.StatusCode >= 500 && r.StatusCode < 600 }
