package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuthState receives the de-authentication signal when the upstream
// rejects the caller's credentials.
type AuthState interface {
	MarkUnauthenticated(ctx context.Context, reason string) error
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithAuthState sets the auth state marked on FatalAuth errors.
func WithAuthState(auth AuthState) Option {
	return func(p *Paginator) {
		p.auth = auth
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Paginator) {
		p.logger = logger
	}
}

// Paginator drives a PageFetcher through the cursor chain of one source,
// recovering from transient upstream errors.
//
// A Paginator holds no per-fetch state and is safe for concurrent use.
// Each Fetch or Resume call owns its own Session.
type Paginator struct {
	fetcher *PageFetcher
	counter query.ColumnCounter
	config  Config
	auth    AuthState
	logger  zerolog.Logger
}

// NewPaginator creates a paginator over executor. If executor implements
// query.ColumnCounter, it is used to derive the first page row cap on a 408.
func NewPaginator(executor query.Executor, cfg Config, opts ...Option) *Paginator {
	p := &Paginator{
		fetcher: NewPageFetcher(executor),
		config:  cfg.withDefaults(),
		logger:  logging.NewLogger("pagination"),
	}
	if counter, ok := executor.(query.ColumnCounter); ok {
		p.counter = counter
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Paginator) Config() Config {
	return p.config
}

// Fetch retrieves every page of req, starting from the beginning of its
// time range.
//
// A stored-mode source without stored data yields a Result in
// StateNoStoredVersion and a nil error. A stored-mode fetch that reaches
// MaxStoredRows stops in StateCapReached with a ResumeToken.
func (p *Paginator) Fetch(ctx context.Context, req FetchRequest) (*Result, error) {
	if err := req.Validate(p.config.ValidateInterval); err != nil {
		return nil, err
	}

	pageRowCap := req.PageRowCap
	if pageRowCap == 0 {
		pageRowCap = p.config.PageRowCap
	}
	return p.run(ctx, newSession(req, "", pageRowCap))
}

// Resume continues a stored-mode fetch from token. The caller must not
// resume the same token twice concurrently.
func (p *Paginator) Resume(ctx context.Context, req FetchRequest, token *ResumeToken) (*Result, error) {
	if err := req.Validate(p.config.ValidateInterval); err != nil {
		return nil, err
	}
	if token == nil || token.Cursor.None() {
		return nil, ErrNoRemainingData
	}
	if !token.matches(req) {
		return nil, fmt.Errorf("%w: token for %s, request for %s", ErrResumeMismatch, token.SourceID, req.SourceID)
	}

	pageRowCap := token.PageRowCap
	if pageRowCap == 0 {
		pageRowCap = req.PageRowCap
	}
	s := newSession(req, token.Cursor, pageRowCap)
	s.delivered = token.RowsDelivered
	return p.run(ctx, s)
}

func (p *Paginator) run(ctx context.Context, s *Session) (*Result, error) {
	start := time.Now()
	req := s.Request
	logger := p.logger.With().
		Str("source_id", req.SourceID).
		Str("mode", string(req.Mode)).
		Logger()

	ctx, span := tracer.Start(ctx, "pagination.session", trace.WithAttributes(
		attribute.String("source.id", req.SourceID),
		attribute.String("source.namespace", req.Namespace),
		attribute.String("fetch.mode", string(req.Mode)),
		attribute.Bool("fetch.resumed", !s.origin.None()),
	))
	defer span.End()

	b := newBackoff(p.config.Retry)
	s.State = StateFetching

	for !s.State.Terminal() {
		if err := ctx.Err(); err != nil {
			return p.fail(span, s, start, fmt.Errorf("%w: %w", ErrContextCancelled, err))
		}

		attempt := Attempt{Cursor: s.Cursor, PageRowCap: s.PageRowCap}
		attemptStart := time.Now()
		page, err := p.fetcher.FetchPage(ctx, req, s.Cursor, s.PageRowCap)
		attempt.Duration = time.Since(attemptStart)

		if err != nil {
			if ctx.Err() != nil {
				return p.fail(span, s, start, fmt.Errorf("%w: %w", ErrContextCancelled, err))
			}

			bucket := query.Classify(err, req.Mode)
			attempt.Err = err
			attempt.Retry = &RetryState{
				Bucket:       bucket,
				ShrinkFactor: shrinkFactor,
				FloorRowCap:  p.config.MinPageRowCap,
			}
			s.History = append(s.History, attempt)

			switch bucket {
			case query.BucketRetryImmediate:
				s.State = StateRetrying
				retriesTotal.WithLabelValues(string(bucket)).Inc()
				logger.Warn().
					Err(err).
					Int("attempt", b.attempts+1).
					Int("page", s.Pages+1).
					Msg("Retrying page")

				if werr := b.wait(ctx); werr != nil {
					if errors.Is(werr, ErrRetryExhausted) {
						werr = fmt.Errorf("%w: %w", werr, err)
					}
					return p.fail(span, s, start, werr)
				}
				s.State = StateFetching

			case query.BucketRetryShrink:
				s.State = StateRetrying
				retriesTotal.WithLabelValues(string(bucket)).Inc()
				if serr := p.shrink(ctx, s, err); serr != nil {
					return p.fail(span, s, start, serr)
				}
				logger.Warn().
					Err(err).
					Int("page_row_cap", s.PageRowCap).
					Msg("Page timed out, restarting with smaller pages")
				b.reset()
				s.State = StateFetching

			case query.BucketFatalAuth:
				if p.auth != nil {
					if merr := p.auth.MarkUnauthenticated(ctx, err.Error()); merr != nil {
						logger.Warn().Err(merr).Msg("Failed to mark session unauthenticated")
					}
				}
				return p.fail(span, s, start, fmt.Errorf("%w: %w", ErrReauthenticate, err))

			case query.BucketFatalNotFound:
				if s.received {
					return p.fail(span, s, start, err)
				}
				s.State = StateNoStoredVersion

			default:
				return p.fail(span, s, start, err)
			}
			continue
		}

		b.reset()
		s.State = StatePageReceived
		attempt.Rows = len(page.Rows)
		s.History = append(s.History, attempt)

		s.Table.Append(page.Columns, page.Rows)
		s.RowCount += len(page.Rows)
		s.Pages++
		s.received = true
		s.Cursor = page.Next

		pagesTotal.WithLabelValues(string(req.Mode)).Inc()
		pageRows.Observe(float64(len(page.Rows)))
		logger.Debug().
			Int("page", s.Pages).
			Int("rows", len(page.Rows)).
			Int("total_rows", s.RowCount).
			Bool("last", page.Next.None()).
			Msg("Page received")

		switch {
		case s.Cursor.None():
			s.State = StateExhausted
		case req.Mode == query.ModeStored && s.RowCount >= p.config.MaxStoredRows:
			s.State = StateCapReached
		default:
			s.State = StateFetching
		}
	}

	return p.finish(span, s, start), nil
}

// shrink halves the page row cap and restarts the session from its origin.
// A cap that was never set is first derived from the row budget.
func (p *Paginator) shrink(ctx context.Context, s *Session, cause error) error {
	current := s.PageRowCap
	if current <= 0 {
		current = p.initialPageRowCap(ctx, s)
	}

	next := current / shrinkFactor
	if next < p.config.MinPageRowCap {
		return &ShrinkFloorError{PageRowCap: next, Floor: p.config.MinPageRowCap, Err: cause}
	}

	s.PageRowCap = next
	s.Cursor = s.origin
	s.Table = table.New()
	s.RowCount = 0
	s.Pages = 0
	pageRowCapShrinks.Inc()
	return nil
}

// initialPageRowCap divides the row budget by the source's column count.
func (p *Paginator) initialPageRowCap(ctx context.Context, s *Session) int {
	columns := len(s.Table.Columns)
	if p.counter != nil {
		n, err := p.counter.ColumnCount(ctx, s.Request.Namespace, s.Request.SourceID)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("source_id", s.Request.SourceID).
				Msg("Column count unavailable, using accumulated schema")
		} else if n > 0 {
			columns = n
		}
	}
	if columns < 1 {
		columns = 1
	}
	return p.config.RowBudget / columns
}

func (p *Paginator) finish(span trace.Span, s *Session, start time.Time) *Result {
	req := s.Request
	if !req.Raw {
		s.Table = table.MergeDigitalStates(s.Table)
	}

	res := &Result{
		Table:   s.Table,
		State:   s.State,
		Pages:   s.Pages,
		Session: s,
	}
	if s.State == StateCapReached {
		res.Resume = &ResumeToken{
			SourceID:      req.SourceID,
			Namespace:     req.Namespace,
			Mode:          req.Mode,
			StartIndex:    req.StartIndex,
			EndIndex:      req.EndIndex,
			Cursor:        s.Cursor,
			PageRowCap:    s.PageRowCap,
			RowsDelivered: s.delivered + int64(s.RowCount),
		}
	}

	duration := time.Since(start)
	sessionsTotal.WithLabelValues(string(req.Mode), s.State.String()).Inc()
	sessionDuration.WithLabelValues(string(req.Mode)).Observe(duration.Seconds())
	span.SetAttributes(
		attribute.String("session.state", s.State.String()),
		attribute.Int("session.pages", s.Pages),
		attribute.Int("session.rows", s.RowCount),
	)

	p.logger.Info().
		Str("source_id", req.SourceID).
		Str("state", s.State.String()).
		Int("pages", s.Pages).
		Int("rows", s.RowCount).
		Dur("duration", duration).
		Msg("Fetch complete")

	return res
}

func (p *Paginator) fail(span trace.Span, s *Session, start time.Time, err error) (*Result, error) {
	s.State = StateFailed
	sessionsTotal.WithLabelValues(string(s.Request.Mode), s.State.String()).Inc()
	sessionDuration.WithLabelValues(string(s.Request.Mode)).Observe(time.Since(start).Seconds())
	recordSpanError(span, err)

	p.logger.Error().
		Err(err).
		Str("source_id", s.Request.SourceID).
		Int("pages", s.Pages).
		Int("attempts", len(s.History)).
		Msg("Fetch failed")

	return nil, err
}
