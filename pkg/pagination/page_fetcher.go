package pagination

import (
	"context"

	"github.com/camlf/academic-hub/pkg/query"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PageFetcher issues exactly one page request per call. Errors are not
// handled here; they go back to the Paginator for classification.
type PageFetcher struct {
	executor query.Executor
}

// NewPageFetcher creates a page fetcher over executor.
func NewPageFetcher(executor query.Executor) *PageFetcher {
	return &PageFetcher{executor: executor}
}

// FetchPage requests the page at cursor with the given row cap.
func (f *PageFetcher) FetchPage(ctx context.Context, req FetchRequest, cursor query.Cursor, pageRowCap int) (query.Page, error) {
	ctx, span := tracer.Start(ctx, "pagination.page", trace.WithAttributes(
		attribute.String("source.id", req.SourceID),
		attribute.Bool("page.first", cursor.None()),
		attribute.Int("page.row_cap", pageRowCap),
	))
	defer span.End()

	page, err := f.executor.Execute(ctx, req.query(cursor, pageRowCap))
	if err != nil {
		recordSpanError(span, err)
		return query.Page{}, err
	}
	span.SetAttributes(attribute.Int("page.rows", len(page.Rows)))
	return page, nil
}
