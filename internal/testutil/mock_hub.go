// Package testutil provides testing utilities for the hub retrieval engine.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockHubResponse defines the behavior for one mock hub response.
type MockHubResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// Next is the path and query of the next page, sent in the Link header.
	Next string
}

// MockHub is a configurable mock of the hub data-view API.
//
// Responses are queued per path and served in order; the last response of a
// queue is repeated once the queue is drained.
type MockHub struct {
	server *httptest.Server
	mu     sync.RWMutex
	queues map[string][]MockHubResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Requests          []string
}

// NewMockHub creates a new mock hub server.
func NewMockHub() *MockHub {
	mock := &MockHub{
		queues: make(map[string][]MockHubResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Requests = append(mock.Requests, r.URL.RequestURI())

		queue := mock.queues[strings.ToLower(r.URL.Path)]
		var resp MockHubResponse
		found := len(queue) > 0
		if found {
			resp = queue[0]
			if len(queue) > 1 {
				mock.queues[strings.ToLower(r.URL.Path)] = queue[1:]
			}
		}
		mock.mu.Unlock()

		if !found {
			mock.write(w, r, NewErrorResponse(http.StatusNotFound))
			return
		}
		mock.write(w, r, resp)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued responses.
func (m *MockHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Requests = nil
	m.queues = make(map[string][]MockHubResponse)
}

// Enqueue appends responses for a path.
func (m *MockHub) Enqueue(path string, resps ...MockHubResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(path)
	m.queues[key] = append(m.queues[key], resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns the request URIs in arrival order.
func (m *MockHub) GetRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Requests...)
}

func (m *MockHub) write(w http.ResponseWriter, r *http.Request, resp MockHubResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.Next != "" {
		first := m.server.URL + r.URL.Path
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="first", <%s%s>; rel="next"`, first, m.server.URL, resp.Next))
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// DataPath returns the data path of a data view.
func DataPath(namespace, dataViewID, mode string) string {
	return fmt.Sprintf("/%s/dataviews/%s/data/%s", namespace, dataViewID, mode)
}

// ResolvedPath returns the resolved data items path of a data view query.
func ResolvedPath(namespace, dataViewID, queryID string) string {
	return fmt.Sprintf("/%s/dataviews/%s/resolved/dataitems/%s", namespace, dataViewID, queryID)
}

// NewCSVResponse creates a 200 OK interpolated page. A non-empty next sets
// the Link header.
func NewCSVResponse(body, next string) MockHubResponse {
	return MockHubResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Next:       next,
		Headers: map[string]string{
			"Content-Type": "text/csv; charset=utf-8",
		},
	}
}

// NewRecordsResponse creates a 200 OK stored page of JSON records.
func NewRecordsResponse(body, next string) MockHubResponse {
	return MockHubResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Next:       next,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewItemsResponse creates a resolved data items response with n items.
func NewItemsResponse(n int) MockHubResponse {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"Name": "item-%d"}`, i)
	}
	return MockHubResponse{
		StatusCode: http.StatusOK,
		Body:       `{"Items": [` + strings.Join(items, ",") + `]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewErrorResponse creates an error response carrying an Operation-Id.
func NewErrorResponse(code int) MockHubResponse {
	return MockHubResponse{
		StatusCode: code,
		Body:       fmt.Sprintf(`{"error": %q}`, http.StatusText(code)),
		Headers: map[string]string{
			"Operation-Id": fmt.Sprintf("op-%d", code),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
