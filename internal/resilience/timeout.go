package resilience

import (
	"context"
	"time"

	"github.com/danamir/banksync/internal/errs"
)

// WithTimeout races op against a deadline. On timeout it returns an
// errs.TimeoutError naming the operation and the configured duration; the
// operation's context is cancelled but the wrapper does not wait for it to
// observe the cancellation. The losing side's result stays inside the
// buffered channel and is never handed to the caller, so a late completion
// cannot overwrite a later attempt's value. The timer is released on normal
// completion.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, name string, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		var zero T
		return zero, &errs.TimeoutError{Op: name, Timeout: timeout}
	}
}
