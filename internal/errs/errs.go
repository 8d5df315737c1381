// Package errs defines the error taxonomy for a sync run: timeouts are
// retryable, shutdown cancellation always propagates, source failures mark a
// single source failed, and everything else is unclassified.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ErrShutdown is returned when an operation is refused because the process is
// shutting down. It is never retried.
var ErrShutdown = errors.New("operation cancelled due to shutdown")

// TimeoutError reports that an operation exceeded its deadline. The operation
// itself is abandoned, not cancelled.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %gs", e.Op, e.Timeout.Seconds())
}

// SourceError reports that a source's fetch completed but the source itself
// signalled failure. It is not retried further by the run loop.
type SourceError struct {
	Source  string
	Message string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %s", e.Source, e.Message)
}

// ConfigError reports invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Classify maps an error to a short category string used in run summaries and
// the error breakdown.
func Classify(err error) string {
	var te *TimeoutError
	var se *SourceError
	var ce *ConfigError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrShutdown):
		return "cancelled"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &se):
		return "source-failure"
	case errors.As(err, &ce):
		return "configuration"
	default:
		return "unclassified"
	}
}
