// Package client provides the hub data-view HTTP client. It implements the
// query executor consumed by the paginator.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/camlf/academic-hub/pkg/cache"
	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for hub client operations.
var (
	hubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_requests_total",
		Help: "Total hub requests by mode and status",
	}, []string{"mode", "status"})

	hubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_request_duration_seconds",
		Help:    "Hub request duration in seconds by mode",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"mode"})
)

// TokenSource supplies the bearer token of each request. Acquiring and
// refreshing tokens is the caller's concern.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// RequestGate decides whether a request may be sent.
type RequestGate interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the hub API root, e.g. "https://hub.example.com/api/v1".
	BaseURL string

	// User-Agent header
	UserAgent string

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// NarrowStored appends "_narrow" to data view ids of stored requests.
	NarrowStored bool

	// ItemsCacheTTL is how long resolved data items are cached.
	ItemsCacheTTL time.Duration
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		UserAgent:     "academic-hub/1.0",
		Timeout:       5 * time.Minute,
		NarrowStored:  true,
		ItemsCacheTTL: 10 * time.Minute,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithCache caches resolved data items in Redis.
func WithCache(m *cache.Manager) Option {
	return func(c *Client) {
		c.cache = m
	}
}

// WithGate checks gate before every request.
func WithGate(gate RequestGate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is the hub data-view client.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	tokens     TokenSource
	cache      *cache.Manager
	gate       RequestGate
	config     Config
	logger     zerolog.Logger
}

// New creates a new hub client.
func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig(cfg.BaseURL).Timeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		base:       base,
		tokens:     tokens,
		config:     cfg,
		logger:     logging.NewLogger("hub-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute issues one page request. It implements query.Executor.
func (c *Client) Execute(ctx context.Context, q query.Query) (query.Page, error) {
	mode := string(q.Mode)
	startTime := time.Now()
	defer func() {
		hubRequestDuration.WithLabelValues(mode).Observe(time.Since(startTime).Seconds())
	}()

	target, err := c.pageURL(q)
	if err != nil {
		return query.Page{}, err
	}

	resp, err := c.do(ctx, target, mode)
	if err != nil {
		return query.Page{}, err
	}
	defer resp.Body.Close()

	var tbl *table.Table
	if q.Mode == query.ModeStored {
		tbl, err = decodeRecords(resp)
	} else {
		tbl, err = table.ReadCSV(resp.Body)
	}
	if err != nil {
		return query.Page{}, fmt.Errorf("decode %s page: %w", mode, err)
	}

	links := parseLinks(resp.Header.Values("Link"))
	page := query.Page{
		Columns:     tbl.Columns,
		Rows:        tbl.Rows,
		Next:        query.Cursor(links["next"]),
		IsFirstPage: q.Cursor.None(),
	}

	c.logger.Debug().
		Str("source_id", q.SourceID).
		Str("mode", mode).
		Int("rows", len(page.Rows)).
		Bool("has_next", !page.Next.None()).
		Msg("Page decoded")

	return page, nil
}

// do sends a GET request and returns the response of a 2xx status. Any
// other status becomes a *query.StatusError.
func (c *Client) do(ctx context.Context, target *url.URL, mode string) (*http.Response, error) {
	if c.gate != nil {
		allowed, err := c.gate.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Session check failed, sending request")
		} else if !allowed {
			hubRequestsTotal.WithLabelValues(mode, "blocked").Inc()
			return nil, &query.StatusError{
				StatusCode: http.StatusUnauthorized,
				Message:    http.StatusText(http.StatusUnauthorized),
				Marker:     query.MarkerUnauthenticated,
				Err:        ErrRequestBlocked,
			}
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	c.logger.Debug().
		Str("url", target.Redacted()).
		Msg("Executing hub request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		hubRequestsTotal.WithLabelValues(mode, "network_error").Inc()
		c.logger.Error().Err(err).Str("url", target.Redacted()).Msg("HTTP request failed")
		return nil, fmt.Errorf("hub request: %w", err)
	}

	hubRequestsTotal.WithLabelValues(mode, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		se := newStatusError(resp)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("operation_id", se.OperationID).
			Str("url", target.Redacted()).
			Msg("Hub request error")
		return nil, se
	}
	return resp, nil
}

// pageURL builds the data URL of q, or validates and returns its cursor.
func (c *Client) pageURL(q query.Query) (*url.URL, error) {
	if !q.Cursor.None() {
		next, err := url.Parse(string(q.Cursor))
		if err != nil {
			return nil, fmt.Errorf("parse cursor: %w", err)
		}
		if !next.IsAbs() {
			next = c.base.ResolveReference(next)
		}
		if next.Scheme != c.base.Scheme || next.Host != c.base.Host {
			return nil, fmt.Errorf("%w: %s", ErrForeignCursor, next.Host)
		}
		if q.PageRowCap > 0 {
			params := next.Query()
			params.Set("count", strconv.Itoa(q.PageRowCap))
			next.RawQuery = params.Encode()
		}
		return next, nil
	}

	dataView := q.SourceID
	params := url.Values{}
	params.Set("startIndex", q.StartIndex)
	params.Set("endIndex", q.EndIndex)
	if q.Mode == query.ModeStored {
		params.Set("form", "tableh")
		if c.config.NarrowStored {
			dataView += "_narrow"
		}
	} else {
		params.Set("form", "csvh")
		params.Set("interpolation", q.Interval)
	}
	if q.PageRowCap > 0 {
		params.Set("count", strconv.Itoa(q.PageRowCap))
	}

	u := c.base.JoinPath(q.Namespace, "dataviews", dataView, "data", string(q.Mode))
	u.RawQuery = params.Encode()
	return u, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
