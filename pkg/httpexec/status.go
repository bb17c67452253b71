package httpexec

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

const maxErrorBody = 512

// CheckStatus applies the bridge's retry policy to a response:
// 5xx is transient (*types.ExecutionError) and 4xx is a permanent rejection
// (*types.PermanentError), except that 408 Request Timeout and 429 Too Many
// Requests are treated as transient too, since the same request can succeed
// later. Everything else passes.
func CheckStatus(req types.Request, resp types.Response) error {
	switch {
	case resp.IsServerError(),
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return &types.ExecutionError{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", http.StatusText(resp.StatusCode)),
		}
	case resp.IsClientError():
		return &types.PermanentError{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       snippet(resp.Body.Bytes()),
		}
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
		// Drop a rune cut in half by the limit.
		for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
			if r, size := utf8.DecodeLastRune(b); r != utf8.RuneError || size > 1 {
				break
			}
			b = b[:len(b)-1]
		}
	}
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}
