package query

import (
	"errors"
	"net/http"
	"strings"
)

// Bucket is the handling class of a failed page fetch.
type Bucket string

const (
	// BucketRetryImmediate re-issues the same request (409, 502).
	BucketRetryImmediate Bucket = "retry_immediate"

	// BucketRetryShrink restarts the session with a smaller page (408).
	BucketRetryShrink Bucket = "retry_shrink"

	// BucketFatalAuth requires the caller to re-authenticate.
	BucketFatalAuth Bucket = "fatal_auth"

	// BucketFatalNotFound means a stored-mode source has no stored data (404).
	BucketFatalNotFound Bucket = "fatal_not_found"

	// BucketFatalOther aborts the session.
	BucketFatalOther Bucket = "fatal_other"
)

// Retryable reports whether the paginator recovers from the bucket itself.
func (b Bucket) Retryable() bool {
	return b == BucketRetryImmediate || b == BucketRetryShrink
}

// Classify maps a page fetch error to exactly one bucket. The result only
// depends on err and mode. A nil error is classified as BucketFatalOther;
// callers only classify failures.
func Classify(err error, mode Mode) Bucket {
	if err == nil {
		return BucketFatalOther
	}

	var se *StatusError
	hasStatus := errors.As(err, &se)

	if hasStatus && strings.EqualFold(se.Marker, MarkerUnauthenticated) {
		return BucketFatalAuth
	}
	if strings.Contains(strings.ToLower(err.Error()), MarkerUnauthenticated) {
		return BucketFatalAuth
	}
	if !hasStatus {
		return BucketFatalOther
	}

	switch se.StatusCode {
	case http.StatusConflict, http.StatusBadGateway:
		return BucketRetryImmediate
	case http.StatusRequestTimeout:
		return BucketRetryShrink
	case http.StatusNotFound:
		if mode == ModeStored {
			return BucketFatalNotFound
		}
		return BucketFatalOther
	default:
		return BucketFatalOther
	}
}
