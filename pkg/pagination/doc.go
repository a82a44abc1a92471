// Package pagination drives resilient, resumable retrieval of paginated
// hub data views.
//
// The hub returns data in bounded pages chained by opaque cursors. A
// Paginator follows that chain for one source, classifying every failure:
//
//   - 409 and 502 re-issue the same page after a jittered backoff
//   - 408 restarts the session with half the page row cap, down to a floor
//   - an "unauthenticated" marker marks the session and asks the caller to
//     log in again
//   - 404 in stored mode yields a result without data instead of an error
//   - anything else aborts the session
//
// Stored-mode sessions stop once they hold MaxStoredRows rows and return a
// ResumeToken; passing it to Resume continues where the previous call left
// off.
//
// A BatchFetcher runs one Paginator session per source on a bounded worker
// pool, tags rows with their SourceId, and returns the merged table sorted
// by (SourceId, Timestamp). The first failing source cancels the rest and
// no partial table is returned.
//
// Example usage:
//
//	p := pagination.NewPaginator(hubClient, pagination.DefaultConfig())
//	res, err := p.Fetch(ctx, pagination.FetchRequest{
//		SourceID:   "brewery.fermenter-vessel-1",
//		Namespace:  "fermentation",
//		StartIndex: "2024-01-01T00:00:00Z",
//		EndIndex:   "2024-01-02T00:00:00Z",
//		Interval:   "00:05:00",
//		Mode:       query.ModeInterpolated,
//	})
package pagination
