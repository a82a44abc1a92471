package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryTracker keeps the auth state in process memory. It is used when no
// Redis is configured.
type MemoryTracker struct {
	mu     sync.RWMutex
	state  AuthState
	logger zerolog.Logger
}

// NewMemoryTracker creates an authenticated in-memory tracker.
func NewMemoryTracker(logger zerolog.Logger) *MemoryTracker {
	return &MemoryTracker{state: *DefaultState(), logger: logger}
}

// GetState returns a copy of the current state.
func (t *MemoryTracker) GetState(_ context.Context) (*AuthState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state := t.state
	return &state, nil
}

// MarkUnauthenticated records that the hub rejected the credentials.
func (t *MemoryTracker) MarkUnauthenticated(_ context.Context, reason string) error {
	t.mu.Lock()
	t.state = AuthState{Authenticated: false, Reason: reason, ChangedAt: time.Now()}
	t.mu.Unlock()

	sessionAuthenticated.Set(0)
	sessionDeauthTotal.Inc()
	t.logger.Warn().Str("reason", reason).Msg("Session marked unauthenticated")
	return nil
}

// SetAuthenticated clears a previous rejection.
func (t *MemoryTracker) SetAuthenticated(_ context.Context) error {
	t.mu.Lock()
	t.state = *DefaultState()
	t.mu.Unlock()

	sessionAuthenticated.Set(1)
	return nil
}

// ShouldAllowRequest returns false once the session is unauthenticated.
func (t *MemoryTracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, _ := t.GetState(ctx)
	return allow(t.logger, state), nil
}
