package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for session tracking.
var (
	sessionAuthenticated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_session_authenticated",
		Help: "1 while the hub accepts the session credentials, 0 after a rejection",
	})

	sessionDeauthTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_session_deauthentications_total",
		Help: "Total number of sessions marked unauthenticated",
	})

	sessionBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_session_blocked_requests_total",
		Help: "Total number of requests refused because the session is unauthenticated",
	})
)

// Tracker is the interface implemented by session state stores.
type Tracker interface {
	GetState(ctx context.Context) (*AuthState, error)
	MarkUnauthenticated(ctx context.Context, reason string) error
	SetAuthenticated(ctx context.Context) error
	ShouldAllowRequest(ctx context.Context) (bool, error)
}

// RedisTracker stores the auth state of one session in Redis so that every
// process sharing the credentials sees a rejection.
type RedisTracker struct {
	redis     *redis.Client
	sessionID string
	logger    zerolog.Logger
}

// NewRedisTracker creates a tracker for sessionID. An empty id gets a
// random one.
func NewRedisTracker(redisClient *redis.Client, sessionID string, logger zerolog.Logger) *RedisTracker {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &RedisTracker{
		redis:     redisClient,
		sessionID: sessionID,
		logger:    logger.With().Str("session_id", sessionID).Logger(),
	}
}

// SessionID returns the tracked session id.
func (t *RedisTracker) SessionID() string {
	return t.sessionID
}

// GetState retrieves the current auth state from Redis.
// Returns an authenticated state if no data exists in Redis.
func (t *RedisTracker) GetState(ctx context.Context) (*AuthState, error) {
	data, err := t.redis.Get(ctx, redisKey(t.sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session state: %w", err)
	}

	var state AuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	return &state, nil
}

// MarkUnauthenticated records that the hub rejected the credentials.
func (t *RedisTracker) MarkUnauthenticated(ctx context.Context, reason string) error {
	if err := t.store(ctx, &AuthState{Authenticated: false, Reason: reason, ChangedAt: time.Now()}); err != nil {
		return err
	}

	sessionAuthenticated.Set(0)
	sessionDeauthTotal.Inc()
	t.logger.Warn().Str("reason", reason).Msg("Session marked unauthenticated")
	return nil
}

// SetAuthenticated clears a previous rejection, typically after a new login.
func (t *RedisTracker) SetAuthenticated(ctx context.Context) error {
	if err := t.store(ctx, DefaultState()); err != nil {
		return err
	}

	sessionAuthenticated.Set(1)
	t.logger.Info().Msg("Session authenticated")
	return nil
}

// ShouldAllowRequest returns false once the session is unauthenticated.
func (t *RedisTracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get session state: %w", err)
	}
	return allow(t.logger, state), nil
}

func (t *RedisTracker) store(ctx context.Context, state *AuthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := t.redis.Set(ctx, redisKey(t.sessionID), data, StateTTL).Err(); err != nil {
		return fmt.Errorf("store session state in redis: %w", err)
	}
	return nil
}

func allow(logger zerolog.Logger, state *AuthState) bool {
	if state.NeedsBlock() {
		logger.Error().
			Str("reason", state.Reason).
			Time("since", state.ChangedAt).
			Msg("Session unauthenticated - blocking request")

		sessionBlocksTotal.Inc()
		return false
	}
	return true
}
