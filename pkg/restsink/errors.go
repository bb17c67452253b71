package restsink

import (
	"fmt"

	"github.com/illmade-knight/go-restbridge/pkg/types"
)

// RecordFailure pairs a record with the reason its delivery failed.
type RecordFailure struct {
	Record types.InboundRecord
	Err    error
}

// Retryable reports whether redelivering the record might succeed.
func (f RecordFailure) Retryable() bool { return types.IsRetryable(f.Err) }

// BatchError collects the per-record failures of one Put call. Records not
// listed were delivered.
type BatchError struct {
	Failures []RecordFailure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("record %s failed: %v", e.Failures[0].Record.ID(), e.Failures[0].Err)
	}
	return fmt.Sprintf("%d records failed, first %s: %v", len(e.Failures), e.Failures[0].Record.ID(), e.Failures[0].Err)
}

// Unwrap exposes every record error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Retryable lists the records eligible for redelivery.
func (e *BatchError) Retryable() []types.InboundRecord {
	var out []types.InboundRecord
	for _, f := range e.Failures {
		if f.Retryable() {
			out = append(out, f.Record)
		}
	}
	return out
}

// Permanent lists the records that will never succeed as they are.
func (e *BatchError) Permanent() []RecordFailure {
	var out []RecordFailure
	for _, f := range e.Failures {
		if !f.Retryable() {
			out = append(out, f)
		}
	}
	return out
}
