package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		mode Mode
		want Bucket
	}{
		{"conflict", NewStatusError(409), ModeInterpolated, BucketRetryImmediate},
		{"bad gateway", NewStatusError(502), ModeStored, BucketRetryImmediate},
		{"timeout", NewStatusError(408), ModeInterpolated, BucketRetryShrink},
		{"timeout stored", NewStatusError(408), ModeStored, BucketRetryShrink},
		{"not found stored", NewStatusError(404), ModeStored, BucketFatalNotFound},
		{"not found interpolated", NewStatusError(404), ModeInterpolated, BucketFatalOther},
		{"service unavailable", NewStatusError(503), ModeInterpolated, BucketFatalOther},
		{"gateway timeout", NewStatusError(504), ModeInterpolated, BucketFatalOther},
		{"server error", NewStatusError(500), ModeInterpolated, BucketFatalOther},
		{
			name: "marker",
			err:  &StatusError{StatusCode: 401, Marker: MarkerUnauthenticated},
			mode: ModeInterpolated,
			want: BucketFatalAuth,
		},
		{
			name: "marker beats retryable code",
			err:  &StatusError{StatusCode: 409, Marker: "UNAUTHENTICATED"},
			mode: ModeInterpolated,
			want: BucketFatalAuth,
		},
		{"plain text marker", errors.New("graphql: Unauthenticated request"), ModeStored, BucketFatalAuth},
		{"wrapped status", fmt.Errorf("fetch page: %w", NewStatusError(408)), ModeStored, BucketRetryShrink},
		{"plain error", errors.New("connection reset"), ModeInterpolated, BucketFatalOther},
		{"context", context.Canceled, ModeInterpolated, BucketFatalOther},
		{"nil", nil, ModeInterpolated, BucketFatalOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err, tt.mode); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewStatusError(502))
	first := Classify(err, ModeStored)
	for i := 0; i < 10; i++ {
		if got := Classify(err, ModeStored); got != first {
			t.Fatalf("Classify() changed from %q to %q", first, got)
		}
	}
}

func TestBucket_Retryable(t *testing.T) {
	tests := []struct {
		bucket Bucket
		want   bool
	}{
		{BucketRetryImmediate, true},
		{BucketRetryShrink, true},
		{BucketFatalAuth, false},
		{BucketFatalNotFound, false},
		{BucketFatalOther, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			if got := tt.bucket.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *StatusError
		expected string
	}{
		{
			name:     "status only",
			err:      NewStatusError(408),
			expected: "hub error (status 408): Request Timeout",
		},
		{
			name: "with marker and operation",
			err: &StatusError{
				StatusCode:  401,
				Message:     "Unauthorized",
				Marker:      MarkerUnauthenticated,
				OperationID: "op-1",
			},
			expected: "hub error (status 401): Unauthorized [unauthenticated] operation op-1",
		},
		{
			name: "with wrapped error",
			err: &StatusError{
				StatusCode: 502,
				Message:    "Bad Gateway",
				Err:        errors.New("upstream closed"),
			},
			expected: "hub error (status 502): Bad Gateway: upstream closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStatusError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &StatusError{StatusCode: 500, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var se *StatusError
	if !errors.As(fmt.Errorf("outer: %w", err), &se) {
		t.Fatal("errors.As should find StatusError")
	}
	if se.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", se.StatusCode)
	}
}

func TestCursor_None(t *testing.T) {
	if !Cursor("").None() {
		t.Error("empty cursor should be none")
	}
	if Cursor("https://hub/next").None() {
		t.Error("non-empty cursor should not be none")
	}
}

func TestMode_Valid(t *testing.T) {
	if !ModeInterpolated.Valid() || !ModeStored.Valid() {
		t.Error("known modes should be valid")
	}
	if Mode("recorded").Valid() {
		t.Error("unknown mode should be invalid")
	}
}
