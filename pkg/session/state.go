// Package session tracks whether the hub still accepts the caller's
// credentials. Once a fetch is rejected as unauthenticated, further
// requests are refused locally until the caller logs in again.
package session

import (
	"strings"
	"time"
)

// RedisKeyPrefix starts the Redis key of every session state.
const RedisKeyPrefix = "hub:session:"

// StateTTL bounds how long a session state is kept in Redis. Hub tokens
// never outlive it.
const StateTTL = 24 * time.Hour

// AuthState is the authentication state of one client session.
// It is shared across processes through Redis.
type AuthState struct {
	// Authenticated is false once the hub rejected the credentials.
	Authenticated bool `json:"authenticated"`

	// Reason is the upstream error that de-authenticated the session.
	Reason string `json:"reason,omitempty"`

	// ChangedAt is when Authenticated last changed.
	ChangedAt time.Time `json:"changed_at"`
}

// DefaultState is the state of a session that never saw an auth failure.
func DefaultState() *AuthState {
	return &AuthState{Authenticated: true, ChangedAt: time.Now()}
}

// NeedsBlock returns true if requests should be refused locally.
func (s *AuthState) NeedsBlock() bool {
	return !s.Authenticated
}

// IsStale returns true if the state is older than maxAge.
func (s *AuthState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.ChangedAt) > maxAge
}

// redisKey returns the Redis key of a session id.
func redisKey(sessionID string) string {
	return RedisKeyPrefix + strings.ToLower(sessionID)
}
