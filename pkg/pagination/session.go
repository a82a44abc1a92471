package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
)

// State is a paginator session state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StatePageReceived
	StateRetrying

	// StateExhausted is terminal: the cursor chain ended.
	StateExhausted

	// StateCapReached is terminal and resumable: a stored-mode session
	// reached MaxStoredRows with more pages left.
	StateCapReached

	// StateFailed is terminal: a fatal error ended the session.
	StateFailed

	// StateNoStoredVersion is terminal: the source has no stored data.
	StateNoStoredVersion
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateFetching:        "fetching",
	StatePageReceived:    "page_received",
	StateRetrying:        "retrying",
	StateExhausted:       "exhausted",
	StateCapReached:      "cap_reached",
	StateFailed:          "failed",
	StateNoStoredVersion: "no_stored_version",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s >= StateExhausted
}

// Attempt records one page request of a session.
type Attempt struct {
	Cursor     query.Cursor
	PageRowCap int
	Rows       int
	Duration   time.Duration

	// Err and Retry are set for failed attempts.
	Err   error
	Retry *RetryState
}

// RetryState is derived from one failed attempt.
type RetryState struct {
	Bucket       query.Bucket
	ShrinkFactor int
	FloorRowCap  int
}

// shrinkFactor divides the page row cap on each 408.
const shrinkFactor = 2

// Session is the mutable state of one paginated fetch. It is owned by the
// Paginator call that created it and never shared.
type Session struct {
	Request FetchRequest
	State   State

	Cursor     query.Cursor
	PageRowCap int
	RowCount   int
	Pages      int
	Table      *table.Table
	History    []Attempt

	// origin is where a shrink restarts: none for a fresh fetch, the
	// token cursor for a resumed one.
	origin query.Cursor

	// delivered counts rows returned by earlier calls of a resumed fetch.
	delivered int64

	// received is set by the first page and survives shrink restarts.
	received bool
}

func newSession(req FetchRequest, origin query.Cursor, pageRowCap int) *Session {
	return &Session{
		Request:    req,
		State:      StateIdle,
		Cursor:     origin,
		PageRowCap: pageRowCap,
		Table:      table.New(),
		origin:     origin,
	}
}

// Result is the outcome of a paginated fetch.
type Result struct {
	Table *table.Table
	State State

	// Resume is set when State is StateCapReached.
	Resume *ResumeToken

	Pages   int
	Session *Session
}

// ResumeToken is the checkpoint of a stored-mode fetch that reached its row
// ceiling. The caller passes it back to Resume and must not run two resumes
// of the same token concurrently.
type ResumeToken struct {
	SourceID      string       `json:"source_id"`
	Namespace     string       `json:"namespace"`
	Mode          query.Mode   `json:"mode"`
	StartIndex    string       `json:"start_index"`
	EndIndex      string       `json:"end_index"`
	Cursor        query.Cursor `json:"cursor"`
	PageRowCap    int          `json:"page_row_cap,omitempty"`
	RowsDelivered int64        `json:"rows_delivered"`
}

// Encode returns the token as an opaque URL-safe string.
func (t *ResumeToken) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal resume token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeResumeToken parses a string produced by ResumeToken.Encode.
func DecodeResumeToken(s string) (*ResumeToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode resume token: %w", err)
	}
	var t ResumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal resume token: %w", err)
	}
	return &t, nil
}

// matches reports whether the token was issued for req.
func (t *ResumeToken) matches(req FetchRequest) bool {
	return t.SourceID == req.SourceID &&
		t.Namespace == req.Namespace &&
		t.Mode == req.Mode &&
		t.StartIndex == req.StartIndex &&
		t.EndIndex == req.EndIndex
}
