package httpexec

import (
	"fmt"
	"net/http"

	"github.com/illmade-knight/go-restbridge/pkg/config"
	"github.com/illmade-knight/go-restbridge/pkg/types"
	"github.com/rs/zerolog"
)

// New builds the executor chain described by cfg: the base transport wrapped
// by request-id, static header and auth decorators.
func New(cfg config.HTTPConfig, logger zerolog.Logger) (RequestExecutor, error) {
	return NewWithClient(cfg, nil, logger)
}

// NewWithClient is New with a caller supplied http.Client, e.g. one with a
// custom transport.
func NewWithClient(cfg config.HTTPConfig, client *http.Client, logger zerolog.Logger) (RequestExecutor, error) {
	execCfg := NewHTTPExecutorDefaults()
	if cfg.RequestTimeout > 0 {
		execCfg.Timeout = cfg.RequestTimeout
	}
	var exec RequestExecutor = NewHTTPExecutor(execCfg, client, logger)

	switch cfg.AuthType {
	case "", config.DefaultAuthType:
	case "basic":
		if cfg.AuthUsername == "" {
			return nil, &types.ConfigurationError{Key: config.KeyAuthUsername, Err: fmt.Errorf("is required for basic auth")}
		}
		exec = WithBasicAuth(exec, cfg.AuthUsername, cfg.AuthPassword)
	case "bearer":
		if cfg.AuthToken == "" {
			return nil, &types.ConfigurationError{Key: config.KeyAuthToken, Err: fmt.Errorf("is required for bearer auth")}
		}
		exec = WithBearerToken(exec, cfg.AuthToken)
	default:
		return nil, &types.ConfigurationError{Key: config.KeyAuthType, Value: cfg.AuthType, Err: fmt.Errorf("unknown auth type")}
	}

	exec = WithStaticHeaders(exec, cfg.Headers)
	if cfg.RequestIDHeader != "" {
		exec = WithRequestID(exec, cfg.RequestIDHeader)
	}
	return exec, nil
}
