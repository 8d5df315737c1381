// Package resilience wraps the unreliable parts of a sync run: retry with
// exponential backoff, deadline enforcement, and cooperative shutdown.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/danamir/banksync/internal/errs"
	"github.com/danamir/banksync/internal/logger"
)

// RetryObserver is invoked before each backoff sleep with the failed attempt
// number, the attempt budget, the computed backoff, and the attempt's error.
type RetryObserver func(attempt, maxAttempts int, backoff time.Duration, err error)

// Retrier retries a fallible operation with exponential backoff. The shutdown
// predicate is consulted before every attempt; cancellation always wins over
// retry.
type Retrier struct {
	MaxAttempts    int
	InitialBackoff time.Duration

	// ShouldShutdown, when set, short-circuits the next attempt with
	// errs.ErrShutdown.
	ShouldShutdown func() bool

	// OnRetry, when set, observes each retry decision.
	OnRetry RetryObserver

	// Sleep is overridable in tests. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Do runs op until it succeeds or the attempt budget is exhausted. Backoff
// between attempts is InitialBackoff * 2^(attempt-1), with no jitter. The
// terminal error names the operation, the attempt count, and the last
// underlying error.
func (r *Retrier) Do(ctx context.Context, name string, op func(context.Context) error) error {
	log := logger.FromContext(ctx)
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if r.ShouldShutdown != nil && r.ShouldShutdown() {
			return errs.ErrShutdown
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt >= r.MaxAttempts {
			break
		}

		backoff := r.InitialBackoff * (1 << (attempt - 1))
		log.Warn().
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", r.MaxAttempts).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Operation failed, retrying")

		if r.OnRetry != nil {
			r.OnRetry(attempt, r.MaxAttempts, backoff, lastErr)
		}
		sleep(backoff)
	}

	return fmt.Errorf("%s failed after %d attempts. Last error: %w", name, r.MaxAttempts, lastErr)
}
