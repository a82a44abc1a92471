package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/camlf/academic-hub/pkg/query"
)

// Common errors returned by the client.
var (
	// ErrRequestBlocked is returned when the session tracker refuses a
	// request because the hub already rejected the credentials.
	ErrRequestBlocked = errors.New("request blocked: session unauthenticated")

	// ErrForeignCursor is returned when a continuation cursor points to a
	// different host than the configured hub.
	ErrForeignCursor = errors.New("cursor does not belong to the configured hub")
)

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 4 << 10

// newStatusError builds the typed error of a non-2xx hub response. A 401 or
// a body mentioning the unauthenticated marker sets the marker.
func newStatusError(resp *http.Response) *query.StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(body))

	se := &query.StatusError{
		StatusCode:  resp.StatusCode,
		Message:     http.StatusText(resp.StatusCode),
		OperationID: resp.Header.Get("Operation-Id"),
	}
	if text != "" {
		se.Err = fmt.Errorf("%s", text)
	}
	if resp.StatusCode == http.StatusUnauthorized ||
		strings.Contains(strings.ToLower(text), query.MarkerUnauthenticated) {
		se.Marker = query.MarkerUnauthenticated
	}
	return se
}
