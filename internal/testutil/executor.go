package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
)

// Step is one scripted executor response.
type Step struct {
	Page query.Page
	Err  error

	// Delay holds the response back unless the context ends first.
	Delay time.Duration

	// Block holds the response back until the context ends.
	Block bool
}

// PageStep returns a page with one row per timestamp. Each row carries a
// Value column equal to the timestamp's Unix seconds.
func PageStep(next query.Cursor, times ...time.Time) Step {
	rows := make([]table.Row, len(times))
	for i, ts := range times {
		rows[i] = table.Row{
			table.Timestamp: ts,
			"Value":         float64(ts.Unix()),
		}
	}
	return Step{Page: query.Page{
		Columns: []string{table.Timestamp, "Value"},
		Rows:    rows,
		Next:    next,
	}}
}

// ErrStep returns a step failing with the given status code.
func ErrStep(code int) Step {
	return Step{Err: query.NewStatusError(code)}
}

// At returns the UTC time at the given second offset from 2024-01-01.
func At(second int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, second, 0, time.UTC)
}

// ScriptedExecutor is an in-memory query.Executor serving scripted steps per
// source. Calls beyond the script fail with a 500.
type ScriptedExecutor struct {
	mu       sync.Mutex
	scripts  map[string][]Step
	columns  map[string]int
	calls    []query.Query
	inFlight int
	maxSeen  int
}

// NewScriptedExecutor creates an empty scripted executor.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		scripts: make(map[string][]Step),
		columns: make(map[string]int),
	}
}

// Script appends steps for a source.
func (e *ScriptedExecutor) Script(sourceID string, steps ...Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[sourceID] = append(e.scripts[sourceID], steps...)
}

// SetColumnCount sets the value ColumnCount reports for a source.
func (e *ScriptedExecutor) SetColumnCount(sourceID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.columns[sourceID] = n
}

// Execute implements query.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, q query.Query) (query.Page, error) {
	e.mu.Lock()
	e.calls = append(e.calls, q)
	steps := e.scripts[q.SourceID]
	if len(steps) == 0 {
		e.mu.Unlock()
		return query.Page{}, &query.StatusError{StatusCode: 500, Message: "no scripted step for " + q.SourceID}
	}
	step := steps[0]
	e.scripts[q.SourceID] = steps[1:]
	e.inFlight++
	if e.inFlight > e.maxSeen {
		e.maxSeen = e.inFlight
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	switch {
	case step.Block:
		<-ctx.Done()
		return query.Page{}, ctx.Err()
	case step.Delay > 0:
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return query.Page{}, ctx.Err()
		case <-timer.C:
		}
	}

	if step.Err != nil {
		return query.Page{}, step.Err
	}
	page := step.Page
	page.IsFirstPage = q.Cursor.None()
	return page, nil
}

// ColumnCount implements query.ColumnCounter.
func (e *ScriptedExecutor) ColumnCount(_ context.Context, _, sourceID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.columns[sourceID]
	if !ok {
		return 0, fmt.Errorf("no column count for %s", sourceID)
	}
	return n, nil
}

// Calls returns every query received, in order.
func (e *ScriptedExecutor) Calls() []query.Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]query.Query(nil), e.calls...)
}

// CallsFor returns the queries received for one source.
func (e *ScriptedExecutor) CallsFor(sourceID string) []query.Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []query.Query
	for _, q := range e.calls {
		if q.SourceID == sourceID {
			out = append(out, q)
		}
	}
	return out
}

// MaxInFlight returns the highest number of concurrent Execute calls seen.
func (e *ScriptedExecutor) MaxInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxSeen
}
