package httpexec

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// WithBasicAuth adds an Authorization: Basic header to every request.
func WithBasicAuth(next RequestExecutor, username, password string) RequestExecutor {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return WithHeader(next, "Authorization", "Basic "+token)
}

// WithBearerToken adds an Authorization: Bearer header to every request.
func WithBearerToken(next RequestExecutor, token string) RequestExecutor {
	return WithHeader(next, "Authorization", "Bearer "+token)
}

// WithHeader sets key on a copy of each request before delegating.
func WithHeader(next RequestExecutor, key, value string) RequestExecutor {
	return ExecutorFunc(func(ctx context.Context, req types.Request) (types.Response, error) {
		return next.Execute(ctx, req.WithHeader(key, value))
	})
}

// WithStaticHeaders adds headers the request does not already carry.
func WithStaticHeaders(next RequestExecutor, headers map[string][]string) RequestExecutor {
	if len(headers) == 0 {
		return next
	}
	static := types.CloneHeaders(headers)
	return ExecutorFunc(func(ctx context.Context, req types.Request) (types.Response, error) {
		out := req.Clone()
		for k, vs := range static {
			if _, ok := out.Headers[k]; !ok {
				out.Headers[k] = append([]string(nil), vs...)
			}
		}
		return next.Execute(ctx, out)
	})
}

// WithRequestID stamps each request with a fresh UUID under header, unless the
// request already has one.
func WithRequestID(next RequestExecutor, header string) RequestExecutor {
	header = http.CanonicalHeaderKey(header)
	return ExecutorFunc(func(ctx context.Context, req types.Request) (types.Response, error) {
		if v, ok := req.Headers[header]; ok && len(v) > 0 {
			return next.Execute(ctx, req)
		}
		return next.Execute(ctx, req.WithHeader(header, uuid.NewString()))
	})
}
