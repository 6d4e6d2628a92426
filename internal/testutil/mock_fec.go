// Package testutil provides testing utilities for the FEC ingestion packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock FEC endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockFEC is a configurable mock OpenFEC server for testing.
//
// Handlers are looked up by path and page first, then by path alone.
// Paths without a handler answer with an empty result page.
type MockFEC struct {
	server       *httptest.Server
	mu           sync.RWMutex
	handlers     map[string]http.HandlerFunc
	pageHandlers map[pageKey]http.HandlerFunc

	// Tracking
	RequestCount int
	PageCounts   map[int]int
	LastQuery    url.Values
	InFlight     int
	MaxInFlight  int
}

type pageKey struct {
	path string
	page int
}

// NewMockFEC creates a new mock FEC server.
func NewMockFEC() *MockFEC {
	mock := &MockFEC{
		handlers:     make(map[string]http.HandlerFunc),
		pageHandlers: make(map[pageKey]http.HandlerFunc),
		PageCounts:   make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		mock.mu.Lock()
		mock.RequestCount++
		mock.PageCounts[page]++
		mock.LastQuery = r.URL.Query()
		mock.InFlight++
		if mock.InFlight > mock.MaxInFlight {
			mock.MaxInFlight = mock.InFlight
		}
		handler, exists := mock.pageHandlers[pageKey{path: r.URL.Path, page: page}]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.InFlight--
			mock.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFEC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFEC) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockFEC) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageCounts = make(map[int]int)
	m.LastQuery = nil
	m.MaxInFlight = 0
}

// SetHandler sets a custom handler for every page of a path.
func (m *MockFEC) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for every page of a path.
func (m *MockFEC) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.handler())
}

// SetPageResponse configures the response for one page of a path.
func (m *MockFEC) SetPageResponse(path string, page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageHandlers[pageKey{path: path, page: page}] = resp.handler()
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockFEC) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageCount returns how often a page number was requested.
func (m *MockFEC) GetPageCount(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageCounts[page]
}

// GetLastQuery returns the query string of the most recent request.
func (m *MockFEC) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetMaxInFlight returns the highest number of concurrent requests observed.
func (m *MockFEC) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MaxInFlight
}

func (r MockResponse) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-req.Context().Done():
				return
			}
		}

		for key, value := range r.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(r.StatusCode)
		if r.Body != "" {
			w.Write([]byte(r.Body))
		}
	}
}

// defaultHandler answers with an empty page.
func (m *MockFEC) defaultHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(EnvelopeBody(page, 0, nil)))
}

// EnvelopeBody renders a page envelope. pages < 0 omits the page count.
func EnvelopeBody(page, pages int, results []map[string]any) string {
	if results == nil {
		results = []map[string]any{}
	}

	pagination := map[string]any{
		"page":     page,
		"per_page": 100,
		"count":    len(results),
	}
	if pages >= 0 {
		pagination["pages"] = pages
	}

	body, err := json.Marshal(map[string]any{
		"api_version": "1.0",
		"results":     results,
		"pagination":  pagination,
	})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal envelope: %v", err))
	}
	return string(body)
}

// NewPageResponse creates a 200 OK response carrying one envelope.
func NewPageResponse(page, pages int, results []map[string]any) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       EnvelopeBody(page, pages, results),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"code": "OVER_RATE_LIMIT"}}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewStatusResponse creates a bodyless response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{StatusCode: status}
}

// Candidates returns n raw candidate results numbered from offset+1.
func Candidates(offset, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"candidate_id": fmt.Sprintf("H%08d", offset+i+1),
			"name":         fmt.Sprintf("DOE, JANE %d", offset+i+1),
			"office":       "H",
			"state":        "CA",
			"district":     "12",
			"party":        "DEM",
		})
	}
	return out
}
