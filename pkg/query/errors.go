package query

import (
	"fmt"
	"net/http"
)

// MarkerUnauthenticated is the textual marker upstreams use when the
// caller's credentials are no longer accepted.
const MarkerUnauthenticated = "unauthenticated"

// StatusError is a failed page fetch. It carries the upstream status code
// and, when the upstream provides one, a textual marker.
type StatusError struct {
	StatusCode  int
	Marker      string
	Message     string
	OperationID string
	Err         error
}

// NewStatusError creates a StatusError for code with the standard status
// text as message.
func NewStatusError(code int) *StatusError {
	return &StatusError{
		StatusCode: code,
		Message:    http.StatusText(code),
	}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("hub error (status %d): %s", e.StatusCode, e.Message)
	if e.Marker != "" {
		msg += " [" + e.Marker + "]"
	}
	if e.OperationID != "" {
		msg += " operation " + e.OperationID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StatusError) Unwrap() error {
	return e.Err
}
