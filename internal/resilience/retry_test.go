package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danamir/banksync/internal/errs"
)

func TestRetrierBackoffSequence(t *testing.T) {
	var slept []time.Duration
	var observed []time.Duration
	calls := 0

	r := &Retrier{
		MaxAttempts:    4,
		InitialBackoff: 1000 * time.Millisecond,
		OnRetry: func(attempt, max int, backoff time.Duration, err error) {
			observed = append(observed, backoff)
		},
		Sleep: func(d time.Duration) { slept = append(slept, d) },
	}

	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 4 {
		t.Errorf("operation invoked %d times, want 4", calls)
	}

	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("backoff %d = %v, want %v", i, slept[i], want[i])
		}
		if observed[i] != want[i] {
			t.Errorf("observed backoff %d = %v, want %v", i, observed[i], want[i])
		}
	}
}

func TestRetrierExhaustion(t *testing.T) {
	calls := 0
	r := &Retrier{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		Sleep:          func(time.Duration) {},
	}

	underlying := errors.New("connection refused")
	err := r.Do(context.Background(), "Fetching leumi", func(context.Context) error {
		calls++
		return underlying
	})
	if calls != 2 {
		t.Errorf("operation invoked %d times, want 2", calls)
	}
	if err == nil {
		t.Fatal("Do() = nil, want error")
	}
	if !strings.Contains(err.Error(), "Fetching leumi") {
		t.Errorf("error %q does not name the operation", err)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("error %q does not name the attempt count", err)
	}
	if !errors.Is(err, underlying) {
		t.Error("terminal error does not wrap the last underlying error")
	}
}

func TestRetrierCancellationPrecedence(t *testing.T) {
	calls := 0
	r := &Retrier{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		ShouldShutdown: func() bool { return true },
		Sleep:          func(time.Duration) {},
	}

	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return nil
	})
	if calls != 0 {
		t.Errorf("operation invoked %d times, want 0", calls)
	}
	if !errors.Is(err, errs.ErrShutdown) {
		t.Errorf("Do() = %v, want ErrShutdown", err)
	}
}

func TestRetrierShutdownBetweenAttempts(t *testing.T) {
	calls := 0
	down := false
	r := &Retrier{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		ShouldShutdown: func() bool { return down },
		Sleep:          func(time.Duration) { down = true },
	}

	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if !errors.Is(err, errs.ErrShutdown) {
		t.Errorf("Do() = %v, want ErrShutdown", err)
	}
}

func TestRetrierSucceedsFirstAttempt(t *testing.T) {
	retried := false
	r := &Retrier{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry:        func(int, int, time.Duration, error) { retried = true },
		Sleep:          func(time.Duration) {},
	}

	if err := r.Do(context.Background(), "fetch", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if retried {
		t.Error("OnRetry fired on a first-attempt success")
	}
}
