// Package query defines the contract between the retrieval engine and the
// upstream query executor: the bounded page request, the page it returns,
// and the typed error it raises on failure.
package query

import (
	"context"

	"github.com/camlf/academic-hub/pkg/table"
)

// Mode selects the kind of data a data view returns.
type Mode string

const (
	// ModeInterpolated returns values resampled at a fixed interval.
	ModeInterpolated Mode = "interpolated"

	// ModeStored returns values as recorded by the source.
	ModeStored Mode = "stored"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeInterpolated || m == ModeStored
}

// Cursor is an opaque continuation token. The empty cursor means none.
type Cursor string

// None reports whether the cursor signals that no further pages exist.
func (c Cursor) None() bool {
	return c == ""
}

// Query is one bounded page request.
type Query struct {
	Mode       Mode
	Namespace  string
	SourceID   string
	StartIndex string
	EndIndex   string

	// Interval is the resampling interval; ignored in stored mode.
	Interval string

	// PageRowCap bounds the rows per page. Zero leaves it to the upstream.
	PageRowCap int

	// Cursor continues a previous page chain; none starts a new one.
	Cursor Cursor
}

// Page is one bounded response chunk.
type Page struct {
	Columns []string
	Rows    []table.Row

	// Next is the continuation cursor; none terminates the chain.
	Next Cursor

	IsFirstPage bool
}

// Executor issues a single page request upstream.
//
// Implementations must report failures with an error that carries an
// HTTP-like status code or a textual marker (see StatusError), so the
// caller can classify it.
type Executor interface {
	Execute(ctx context.Context, q Query) (Page, error)
}

// ColumnCounter is implemented by executors that can report how many
// columns a source produces. It is used to derive an initial page row cap.
type ColumnCounter interface {
	ColumnCount(ctx context.Context, namespace, sourceID string) (int, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q Query) (Page, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, q Query) (Page, error) {
	return f(ctx, q)
}
