package resilience

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/danamir/banksync/internal/logger"
)

// ShutdownCoordinator carries the run's cancellation state: a single
// shutting-down flag plus an ordered list of cleanup callbacks. It is
// constructed once per run and passed explicitly into every loop boundary;
// loops poll IsShuttingDown between units of work.
type ShutdownCoordinator struct {
	shuttingDown atomic.Bool

	mu        sync.Mutex
	callbacks []func(context.Context) error
}

// NewShutdownCoordinator returns a coordinator with the flag cleared.
func NewShutdownCoordinator() *ShutdownCoordinator {
	return &ShutdownCoordinator{}
}

// IsShuttingDown reports whether shutdown has been requested.
func (s *ShutdownCoordinator) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// OnShutdown registers a cleanup callback. Callbacks run in registration
// order when Trigger is called.
func (s *ShutdownCoordinator) OnShutdown(cb func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Trigger sets the flag and runs the registered callbacks in order. A second
// call is a no-op. Callback failures are logged, not propagated, so one
// failing cleanup step does not block the rest.
func (s *ShutdownCoordinator) Trigger(ctx context.Context) {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	log := logger.FromContext(ctx)
	log.Warn().Msg("Shutdown requested, running cleanup callbacks")

	s.mu.Lock()
	callbacks := make([]func(context.Context) error, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for i, cb := range callbacks {
		if err := cb(ctx); err != nil {
			log.Error().Err(err).Int("callback", i).Msg("Shutdown callback failed")
		}
	}

	log.Info().Msg("Shutdown cleanup complete")
}
