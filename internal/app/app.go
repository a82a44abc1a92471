// Package app assembles the hub retrieval stack from a configuration: the
// shared Redis, session tracker, items cache, hub client, paginator, batch
// fetcher and checkpoint store.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/camlf/academic-hub/pkg/cache"
	"github.com/camlf/academic-hub/pkg/checkpoint"
	"github.com/camlf/academic-hub/pkg/client"
	"github.com/camlf/academic-hub/pkg/config"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/camlf/academic-hub/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoToken is returned when no hub token is configured.
var ErrNoToken = errors.New("hub token is required (set HUB_TOKEN)")

// App holds the assembled components.
type App struct {
	Config     *config.Config
	Redis      *redis.Client
	Tracker    session.Tracker
	Client     *client.Client
	Paginator  *pagination.Paginator
	Batch      *pagination.BatchFetcher
	Checkpoint checkpoint.Store
	Logger     zerolog.Logger
}

// Option customizes assembly.
type Option func(*options)

type options struct {
	tokens     client.TokenSource
	httpClient *http.Client
}

// WithTokenSource replaces the configured static token.
func WithTokenSource(tokens client.TokenSource) Option {
	return func(o *options) {
		o.tokens = tokens
	}
}

// WithHTTPClient sets the HTTP client of the hub client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// New assembles the stack. Redis is optional: without it the session state
// is kept in memory and resolved items are not cached.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokens == nil {
		if cfg.Hub.Token == "" {
			return nil, ErrNoToken
		}
		o.tokens = client.StaticToken(cfg.Hub.Token)
	}

	a := &App{
		Config: cfg,
		Logger: logging.NewLogger("app"),
	}

	var clientOpts []client.Option
	if cfg.Redis.URL != "" {
		redisOpts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		a.Redis = redis.NewClient(redisOpts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Redis.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Tracker = session.NewRedisTracker(a.Redis, cfg.Redis.SessionID, logging.NewLogger("session"))
		clientOpts = append(clientOpts, client.WithCache(cache.NewManager(a.Redis)))
	} else {
		a.Tracker = session.NewMemoryTracker(logging.NewLogger("session"))
	}
	clientOpts = append(clientOpts, client.WithGate(a.Tracker))
	if o.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.httpClient))
	}

	hub, err := client.New(cfg.Client(), o.tokens, clientOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Client = hub

	a.Paginator = pagination.NewPaginator(hub, cfg.Paging, pagination.WithAuthState(a.Tracker))
	a.Batch = pagination.NewBatchFetcher(a.Paginator)

	switch cfg.Checkpoint.Backend {
	case "redis":
		if a.Redis == nil {
			a.Close()
			return nil, fmt.Errorf("checkpoint backend redis requires redis.url")
		}
		a.Checkpoint = checkpoint.NewRedisStore(a.Redis, cfg.Checkpoint.TTL)
	case "sqlite":
		store, err := checkpoint.OpenSQLite(ctx, cfg.Checkpoint.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Checkpoint = store
	}

	a.Logger.Info().
		Str("base_url", cfg.Hub.BaseURL).
		Bool("redis", a.Redis != nil).
		Str("checkpoint", cfg.Checkpoint.Backend).
		Int("workers", cfg.Paging.Workers).
		Msg("Hub stack ready")

	return a, nil
}

// Runner returns a checkpoint runner, or nil without a checkpoint store.
func (a *App) Runner() *checkpoint.Runner {
	if a.Checkpoint == nil {
		return nil
	}
	return checkpoint.NewRunner(a.Paginator, a.Checkpoint)
}

// Ready reports whether the stack can serve requests: Redis answers and
// the session is authenticated.
func (a *App) Ready(ctx context.Context) error {
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	allowed, err := a.Tracker.ShouldAllowRequest(ctx)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if !allowed {
		return client.ErrRequestBlocked
	}
	return nil
}

// Close releases all resources.
func (a *App) Close() error {
	var errs []error
	if a.Client != nil {
		errs = append(errs, a.Client.Close())
	}
	if a.Checkpoint != nil {
		errs = append(errs, a.Checkpoint.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
