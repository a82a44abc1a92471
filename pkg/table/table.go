// Package table provides the tabular result type produced by hub data-view
// fetches, together with the digital-state merge and CSV/JSON codecs.
package table

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// Well-known column names.
const (
	// Timestamp is the index column every result table carries.
	Timestamp = "Timestamp"

	// SourceID tags rows with the data view they were fetched from
	// when several sources are merged into one table.
	SourceID = "SourceId"
)

// Row is one record keyed by column name.
// Cell values are float64 (NaN when absent), string, or time.Time.
type Row map[string]any

// Timestamp returns the row's Timestamp cell, or the zero time if the
// cell is missing or not a time.
func (r Row) Timestamp() time.Time {
	if ts, ok := r[Timestamp].(time.Time); ok {
		return ts
	}
	return time.Time{}
}

// Table is an ordered sequence of rows sharing a column schema.
type Table struct {
	// Columns is the schema in display order.
	Columns []string

	// Rows are kept in arrival order until Sort is called.
	Rows []Row
}

// New creates an empty table. The Timestamp column is always first.
func New(columns ...string) *Table {
	t := &Table{Columns: []string{Timestamp}}
	t.AddColumns(columns...)
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether name is part of the schema.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// AddColumns appends columns missing from the schema, preserving order.
func (t *Table) AddColumns(columns ...string) {
	for _, c := range columns {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
}

// DropColumns removes columns from the schema and from every row.
func (t *Table) DropColumns(columns ...string) {
	if len(columns) == 0 {
		return
	}
	t.Columns = slices.DeleteFunc(t.Columns, func(c string) bool {
		return slices.Contains(columns, c)
	})
	for _, row := range t.Rows {
		for _, c := range columns {
			delete(row, c)
		}
	}
}

// Append adds rows to the end of the table and widens the schema with
// any columns it does not know yet.
func (t *Table) Append(columns []string, rows []Row) {
	t.AddColumns(columns...)
	t.Rows = append(t.Rows, rows...)
}

// Concat appends every row of other, keeping other's row order.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	t.Append(other.Columns, other.Rows)
}

// Tag sets column to value on every row and adds it to the schema.
func (t *Table) Tag(column string, value any) {
	t.AddColumns(column)
	for _, row := range t.Rows {
		row[column] = value
	}
}

// Reset drops all rows but keeps the schema.
func (t *Table) Reset() {
	t.Rows = nil
}

// SortBySource orders rows by (SourceId, Timestamp) ascending. The sort is
// stable, so ties keep their arrival order.
func (t *Table) SortBySource() {
	slices.SortStableFunc(t.Rows, func(a, b Row) int {
		sa, _ := a[SourceID].(string)
		sb, _ := b[SourceID].(string)
		if c := cmp.Compare(sa, sb); c != 0 {
			return c
		}
		return a.Timestamp().Compare(b.Timestamp())
	})
}

// Missing reports whether a cell holds no numeric value: absent, nil,
// or NaN.
func Missing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}
