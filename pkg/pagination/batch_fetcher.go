package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camlf/academic-hub/pkg/table"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BatchOption configures a BatchFetcher.
type BatchOption func(*BatchFetcher)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) BatchOption {
	return func(bf *BatchFetcher) {
		if n > 0 {
			bf.workers = n
		}
	}
}

// WithSkipSort leaves the merged rows in completion order.
func WithSkipSort() BatchOption {
	return func(bf *BatchFetcher) {
		bf.skipSort = true
	}
}

// BatchFetcher runs one paginated fetch per source in a bounded worker pool
// and merges the results. It is all-or-nothing: the first failed source
// cancels the rest and no partial table is returned.
type BatchFetcher struct {
	paginator *Paginator
	workers   int
	skipSort  bool
	logger    zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher over p. The pool size defaults to
// the paginator's Workers setting.
func NewBatchFetcher(p *Paginator, opts ...BatchOption) *BatchFetcher {
	bf := &BatchFetcher{
		paginator: p,
		workers:   p.config.Workers,
		logger:    p.logger.With().Str("component", "batch").Logger(),
	}
	for _, opt := range opts {
		opt(bf)
	}
	return bf
}

// BatchResult is the merged outcome of a batch fetch.
type BatchResult struct {
	// Table holds every source's rows tagged with a SourceId column,
	// sorted by (SourceId, Timestamp).
	Table *table.Table

	// Resume holds the tokens of stored-mode sources that reached their
	// row ceiling, by source id.
	Resume map[string]*ResumeToken

	// NoStoredVersion lists stored-mode sources without stored data.
	NoStoredVersion []string
}

type sourceResult struct {
	sourceID string
	result   *Result
}

// FetchAll fetches every request and merges the tables. All requests are
// validated before any page is requested.
func (bf *BatchFetcher) FetchAll(ctx context.Context, reqs []FetchRequest) (*BatchResult, error) {
	start := time.Now()

	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if err := req.Validate(bf.paginator.config.ValidateInterval); err != nil {
			return nil, &SourceError{SourceID: req.SourceID, Err: err}
		}
		if _, dup := seen[req.SourceID]; dup {
			return nil, &ValidationError{Field: "source id", Value: req.SourceID, Err: errors.New("duplicate in batch")}
		}
		seen[req.SourceID] = struct{}{}
	}

	ctx, span := tracer.Start(ctx, "pagination.batch", trace.WithAttributes(
		attribute.Int("batch.sources", len(reqs)),
		attribute.Int("batch.workers", bf.workers),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.workers)

	results := make(chan sourceResult, len(reqs))
	failures := make(chan error, len(reqs))

	// Submit from a separate goroutine so the coordinator can observe the
	// first failure while submissions are still blocked on the limit.
	go func() {
		for _, req := range reqs {
			req := req
			if gctx.Err() != nil {
				return
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				res, err := bf.paginator.Fetch(gctx, req)
				if err != nil {
					serr := &SourceError{SourceID: req.SourceID, Err: err}
					failures <- serr
					return serr
				}
				results <- sourceResult{sourceID: req.SourceID, result: res}
				return nil
			})
		}
	}()

	merged := &BatchResult{
		Table:  table.New(),
		Resume: make(map[string]*ResumeToken),
	}

	for received := 0; received < len(reqs); {
		select {
		case r := <-results:
			received++
			bf.merge(merged, r)

		case err := <-failures:
			cancel()
			batchSourcesTotal.WithLabelValues("discarded").Add(float64(received))
			batchDuration.Observe(time.Since(start).Seconds())
			recordSpanError(span, err)
			bf.logger.Error().
				Err(err).
				Int("completed", received).
				Int("sources", len(reqs)).
				Msg("Batch fetch failed, discarding results")
			return nil, err

		case <-ctx.Done():
			err := fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			recordSpanError(span, err)
			return nil, err
		}
	}

	// Every worker has delivered its result.
	_ = g.Wait()

	// The tag column follows the data columns.
	merged.Table.AddColumns(table.SourceID)

	if !bf.skipSort {
		merged.Table.SortBySource()
	}

	duration := time.Since(start)
	batchSourcesTotal.WithLabelValues("merged").Add(float64(len(reqs)))
	batchDuration.Observe(duration.Seconds())
	span.SetAttributes(attribute.Int("batch.rows", merged.Table.Len()))

	bf.logger.Info().
		Int("sources", len(reqs)).
		Int("rows", merged.Table.Len()).
		Int("no_stored_version", len(merged.NoStoredVersion)).
		Int("resumable", len(merged.Resume)).
		Dur("duration", duration).
		Msg("Batch fetch complete")

	return merged, nil
}

// merge folds one source's result into the batch. Only the coordinator
// calls it.
func (bf *BatchFetcher) merge(dst *BatchResult, r sourceResult) {
	switch r.result.State {
	case StateNoStoredVersion:
		dst.NoStoredVersion = append(dst.NoStoredVersion, r.sourceID)
		return
	case StateCapReached:
		dst.Resume[r.sourceID] = r.result.Resume
	}

	r.result.Table.Tag(table.SourceID, r.sourceID)
	dst.Table.Concat(r.result.Table)
}

// FetchMany fetches reqs with a pool of workers and returns the merged
// table. A workers value of zero uses the configured default.
func (p *Paginator) FetchMany(ctx context.Context, reqs []FetchRequest, workers int) (*table.Table, error) {
	res, err := NewBatchFetcher(p, WithWorkers(workers)).FetchAll(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}
