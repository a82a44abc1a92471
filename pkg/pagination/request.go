package pagination

import (
	"errors"
	"time"

	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
)

// intervalLayout is the H:M:S format of interpolation intervals. Each
// field takes one or two digits, so "0:5:0" and "00:05:00" are equal.
const intervalLayout = "15:4:5"

// FetchRequest describes one paginated fetch. It does not change once a
// session starts.
type FetchRequest struct {
	SourceID   string
	Namespace  string
	StartIndex string
	EndIndex   string

	// Interval is the interpolation interval; ignored in stored mode.
	Interval string

	// PageRowCap bounds the rows per page. Zero leaves it unset until a
	// 408 derives one.
	PageRowCap int

	Mode query.Mode

	// SubSecond skips the HH:MM:SS interval check for intervals the
	// format cannot express.
	SubSecond bool

	// Raw keeps digital state columns unmerged.
	Raw bool
}

// Validate checks the request shape without contacting the upstream.
func (r FetchRequest) Validate(validateInterval bool) error {
	if r.SourceID == "" {
		return &ValidationError{Field: "source id", Err: errors.New("required")}
	}
	if r.Namespace == "" {
		return &ValidationError{Field: "namespace", Err: errors.New("required")}
	}
	if !r.Mode.Valid() {
		return &ValidationError{Field: "mode", Value: string(r.Mode), Err: errors.New("unknown mode")}
	}
	if r.PageRowCap < 0 {
		return &ValidationError{Field: "page row cap", Err: errors.New("must not be negative")}
	}

	start, err := table.ParseTime(r.StartIndex)
	if err != nil {
		return &ValidationError{Field: "start index", Value: r.StartIndex, Err: err}
	}
	end, err := table.ParseTime(r.EndIndex)
	if err != nil {
		return &ValidationError{Field: "end index", Value: r.EndIndex, Err: err}
	}
	if end.Before(start) {
		return &ValidationError{Field: "end index", Value: r.EndIndex, Err: errors.New("before start index")}
	}

	if validateInterval && r.Mode == query.ModeInterpolated && !r.SubSecond {
		if _, err := time.Parse(intervalLayout, r.Interval); err != nil {
			return &ValidationError{Field: "interval", Value: r.Interval, Err: errors.New("expected HH:MM:SS")}
		}
	}

	return nil
}

// query builds the page request for cursor and page row cap.
func (r FetchRequest) query(cursor query.Cursor, pageRowCap int) query.Query {
	return query.Query{
		Mode:       r.Mode,
		Namespace:  r.Namespace,
		SourceID:   r.SourceID,
		StartIndex: r.StartIndex,
		EndIndex:   r.EndIndex,
		Interval:   r.Interval,
		PageRowCap: pageRowCap,
		Cursor:     cursor,
	}
}
