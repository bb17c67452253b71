package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_IsImmutable(t *testing.T) {
	// Arrange
	body := []byte("hello")
	headers := map[string][]string{"content-type": {"text/plain"}}

	// Act
	p := types.NewBytesPayload(body, types.WithHeaders(headers), types.WithStatusCode(200))
	body[0] = 'J'
	headers["content-type"][0] = "application/json"
	got := p.Body()
	got[1] = 'A'

	// Assert
	assert.Equal(t, []byte("hello"), p.Body())
	assert.Equal(t, "text/plain", p.ContentType(), "content type is taken from headers when not set")
	assert.Equal(t, "text/plain", p.Header("Content-Type"))
	assert.Equal(t, 200, p.StatusCode())
}

func TestPayload_Bytes(t *testing.T) {
	s := types.NewStringPayload("héllo")
	assert.Equal(t, []byte("héllo"), s.Bytes())
	assert.Equal(t, len("héllo"), s.Len())
}

func TestParseMethod(t *testing.T) {
	testCases := []struct {
		in      string
		want    types.Method
		wantErr bool
	}{
		{in: "get", want: types.MethodGet},
		{in: " POST ", want: types.MethodPost},
		{in: "TRACE", want: types.MethodTrace},
		{in: "PATCH", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := types.ParseMethod(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, m)
		})
	}
}

func TestRequest_CloneDoesNotShareState(t *testing.T) {
	body := types.NewBytesPayload([]byte("x"))
	req := types.Request{
		Method:  types.MethodPost,
		URL:     "http://x/y",
		Headers: map[string][]string{"X-A": {"1"}},
		Body:    &body,
	}

	withAuth := req.WithHeader("Authorization", "Basic abc")

	assert.NotContains(t, req.Headers, "Authorization")
	assert.Equal(t, []string{"Basic abc"}, withAuth.Headers["Authorization"])
	assert.Equal(t, []string{"1"}, withAuth.Headers["X-A"])
}

func TestResponse_StatusClasses(t *testing.T) {
	assert.True(t, types.Response{StatusCode: 204}.IsSuccess())
	assert.True(t, types.Response{StatusCode: 404}.IsClientError())
	assert.True(t, types.Response{StatusCode: 503}.IsServerError())
	assert.False(t, types.Response{StatusCode: 302}.IsSuccess())
}

func TestDestinationRecord_ValueBytes(t *testing.T) {
	b, err := types.DestinationRecord{Value: "hello"}.ValueBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	b, err = types.DestinationRecord{Value: []byte{0xff, 0x00}}.ValueBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x00}, b)

	_, err = types.DestinationRecord{Topic: "t", Value: 42}.ValueBytes()
	assert.Error(t, err)
}

func TestErrors_Classification(t *testing.T) {
	exec := fmt.Errorf("poll: %w", &types.ExecutionError{URL: "http://x", StatusCode: 500, Err: errors.New("server error")})
	perm := fmt.Errorf("poll: %w", &types.PermanentError{URL: "http://x", StatusCode: 404})
	notInit := &types.NotInitializedError{Component: "TemplatePayloadConverter"}

	assert.True(t, types.IsRetryable(exec))
	assert.False(t, types.IsPermanent(exec))
	assert.True(t, types.IsPermanent(perm))
	assert.False(t, types.IsRetryable(perm))
	assert.ErrorIs(t, notInit, types.ErrNotInitialized)
	assert.Contains(t, (&types.ConfigurationError{Key: "url", Err: errors.New("is required")}).Error(), `"url"`)
	assert.Contains(t, (&types.ConversionError{ID: "t/0/7", Err: errors.New("bad")}).Error(), "t/0/7")
}
