// Package testutil provides a mock paginated REST API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Request is one request observed by MockAPI.
type Request struct {
	Cursor int64
	Size   int
	Query  url.Values
	Header http.Header
}

// MockAPI serves a collection of Total records as {"data": [...],
// "totalCount": N}. Requests with an "offset" parameter are served by
// offset/limit, all others by page/per_page (1-based pages).
// Record i is {"id": i, "name": "item-i"}.
type MockAPI struct {
	server *httptest.Server

	mu          sync.Mutex
	total       int
	reportTotal bool
	totalFunc   func(call int) (int64, bool)
	failures    map[int64][]int
	bodies      map[int64]string
	retryAfter  string
	delay       time.Duration
	requests    []Request
	inFlight    int
	maxInFlight int
}

// NewMockAPI starts a mock API holding total records that reports its
// total count.
func NewMockAPI(total int) *MockAPI {
	m := &MockAPI{
		total:       total,
		reportTotal: true,
		failures:    make(map[int64][]int),
		bodies:      make(map[int64]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the collection URL.
func (m *MockAPI) URL() string {
	return m.server.URL + "/items"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetReportTotal toggles the totalCount field.
func (m *MockAPI) SetReportTotal(report bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportTotal = report
}

// SetTotalFunc overrides the reported total per call (0-based request index).
// Returning false omits the field.
func (m *MockAPI) SetTotalFunc(fn func(call int) (int64, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalFunc = fn
}

// FailCursor makes the next len(statuses) requests for cursor answer with
// the given statuses, in order, before serving data.
func (m *MockAPI) FailCursor(cursor int64, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[cursor] = append(m.failures[cursor], statuses...)
}

// SetBody replaces the response body for cursor.
func (m *MockAPI) SetBody(cursor int64, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[cursor] = body
}

// SetRetryAfter sets the Retry-After header sent with 429 responses.
func (m *MockAPI) SetRetryAfter(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAfter = value
}

// SetDelay delays every response.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns the requests observed so far.
func (m *MockAPI) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests observed.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Cursors returns the cursor of every observed request.
func (m *MockAPI) Cursors() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.requests))
	for i, r := range m.requests {
		out[i] = r.Cursor
	}
	return out
}

// MaxInFlight returns the highest number of concurrent requests seen.
func (m *MockAPI) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Record returns the JSON of record i.
func Record(i int) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"id": i, "name": "item-" + strconv.Itoa(i)})
	return b
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cursor int64
	var start, size int
	if q.Has("offset") {
		cursor, _ = strconv.ParseInt(q.Get("offset"), 10, 64)
		size, _ = strconv.Atoi(q.Get("limit"))
		start = int(cursor)
	} else {
		cursor, _ = strconv.ParseInt(q.Get("page"), 10, 64)
		size, _ = strconv.Atoi(q.Get("per_page"))
		start = int(cursor-1) * size
	}

	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, Request{Cursor: cursor, Size: size, Query: q, Header: r.Header.Clone()})
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	var status int
	if pending := m.failures[cursor]; len(pending) > 0 {
		status = pending[0]
		m.failures[cursor] = pending[1:]
	}
	body, override := m.bodies[cursor]
	retryAfter := m.retryAfter
	total, reportTotal := int64(m.total), m.reportTotal
	if m.totalFunc != nil {
		total, reportTotal = m.totalFunc(call)
	}
	collection := m.total
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if status != 0 {
		if status == http.StatusTooManyRequests && retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"injected failure"}`))
		return
	}

	if override {
		w.Write([]byte(body))
		return
	}

	data := make([]json.RawMessage, 0, size)
	for i := start; i >= 0 && i < collection && i < start+size; i++ {
		data = append(data, Record(i))
	}

	resp := map[string]any{"data": data}
	if reportTotal {
		resp["totalCount"] = total
	}
	json.NewEncoder(w).Encode(resp)
}
