package types

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is matched by every NotInitializedError via errors.Is.
var ErrNotInitialized = errors.New("component used before Start")

// ConfigurationError is fatal at startup. Key names the offending property.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid configuration %q (value %q): %v", e.Key, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid configuration %q: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExecutionError is a transient failure executing a request: transport errors,
// timeouts, malformed responses and 5xx statuses. StatusCode is 0 when no
// response was received.
type ExecutionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("execute %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("execute %s: %v", e.URL, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PermanentError is a 4xx response. Retrying the same request will not help.
type PermanentError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request to %s rejected with status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request to %s rejected with status %d", e.URL, e.StatusCode)
}

// ConversionError is a per-item failure to convert a payload or record. ID
// identifies the payload (URL, record id).
type ConversionError struct {
	ID  string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.ID, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// NotInitializedError reports a converter or selector used before its Start
// step. It indicates a wiring bug in the host.
type NotInitializedError struct {
	Component string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, ErrNotInitialized)
}

func (e *NotInitializedError) Is(target error) bool { return target == ErrNotInitialized }

// IsRetryable reports whether err is a transient execution failure.
func IsRetryable(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsPermanent reports whether err is a permanent request rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsConversion reports whether err is a conversion error.
func IsConversion(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}
