package pagination

import (
	"errors"
	"fmt"
)

// Common errors returned by the paginator.
var (
	// ErrReauthenticate is returned when the upstream no longer accepts
	// the caller's credentials. The caller should log in again rather than
	// treat it as a data access failure.
	ErrReauthenticate = errors.New("re-authentication required")

	// ErrRetryExhausted is returned when immediate retries of one page
	// exceed RetryConfig.MaxAttempts.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a
	// retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNoRemainingData is returned by Resume when the token holds no
	// continuation cursor.
	ErrNoRemainingData = errors.New("no remaining data to resume")

	// ErrResumeMismatch is returned by Resume when the token was issued for
	// a different source, namespace, time range or mode.
	ErrResumeMismatch = errors.New("resume token does not match request")
)

// ValidationError reports a malformed FetchRequest. It is returned before
// any page is requested.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ShrinkFloorError is returned when a 408 would shrink the page row cap
// below the configured floor. Err is the last upstream error.
type ShrinkFloorError struct {
	PageRowCap int
	Floor      int
	Err        error
}

// Error implements the error interface.
func (e *ShrinkFloorError) Error() string {
	return fmt.Sprintf("page row cap %d below floor %d: %v", e.PageRowCap, e.Floor, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ShrinkFloorError) Unwrap() error {
	return e.Err
}

// SourceError is the first fatal failure of a batch fetch, attributed to
// the source that raised it.
type SourceError struct {
	SourceID string
	Err      error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}
