// Package testutil provides a scriptable Plex server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockItem is one library item served by MockPlex.
type MockItem struct {
	RatingKey int64
	Title     string
	Year      int
	AddedAt   int64
	Thumb     string
}

// MockSection is one library section served by MockPlex.
type MockSection struct {
	Key   int
	Title string
	Type  string
}

// UpdateCall records one PUT against a section.
type UpdateCall struct {
	SectionID int
	ID        int64
	AddedAt   int64
	Locked    bool
	Status    int
	Query     url.Values
}

// MockResponse defines a canned response for SetResponse.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPlex is a configurable mock Plex server for testing.
type MockPlex struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	sections []MockSection
	items    map[int][]MockItem

	// reported overrides the totalSize of a section; -1 omits the field
	reported map[int]int
	// statuses holds scripted PUT status codes per item id, consumed in order
	statuses map[int64][]int
	token    string
	delay    time.Duration

	updates      []UpdateCall
	listRequests []url.Values
	requestCount int
}

// NewMockPlex creates and starts a mock server.
func NewMockPlex() *MockPlex {
	m := &MockPlex{
		handlers: make(map[string]http.HandlerFunc),
		items:    make(map[int][]MockItem),
		reported: make(map[int]int),
		statuses: make(map[int64][]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockPlex) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPlex) Close() {
	m.server.Close()
}

// RequireToken makes every request without this X-Plex-Token fail with 401.
func (m *MockPlex) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// SetDelay delays every response.
func (m *MockPlex) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// AddSection registers a section with its items.
func (m *MockPlex) AddSection(section MockSection, items ...MockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections = append(m.sections, section)
	m.items[section.Key] = append(m.items[section.Key], items...)
}

// SetItems replaces the items of a section.
func (m *MockPlex) SetItems(sectionID int, items []MockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sectionID] = items
}

// SetReportedTotal overrides the totalSize reported for a section. Pass -1
// to omit totalSize so clients fall back to size.
func (m *MockPlex) SetReportedTotal(sectionID, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported[sectionID] = total
}

// ScriptUpdate queues status codes returned by successive PUTs for id.
// Once the queue is drained PUTs succeed.
func (m *MockPlex) ScriptUpdate(id int64, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = append(m.statuses[id], statuses...)
}

// SetHandler sets a custom handler for a specific path, replacing the
// built-in behavior.
func (m *MockPlex) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockPlex) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Updates returns the recorded PUTs, including failed ones.
func (m *MockPlex) Updates() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UpdateCall, len(m.updates))
	copy(out, m.updates)
	return out
}

// ListRequests returns the query of every section listing request.
func (m *MockPlex) ListRequests() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]url.Values, len(m.listRequests))
	copy(out, m.listRequests)
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockPlex) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Reset clears all tracking counters.
func (m *MockPlex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = nil
	m.listRequests = nil
	m.requestCount = 0
}

func (m *MockPlex) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	handler, custom := m.handlers[r.URL.Path]
	token := m.token
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if token != "" && r.Header.Get("X-Plex-Token") != token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if custom {
		handler(w, r)
		return
	}

	if r.URL.Path == "/library/sections" && r.Method == http.MethodGet {
		m.serveSections(w)
		return
	}

	sectionID, ok := parseSectionPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.serveList(w, sectionID, r.URL.Query())
	case http.MethodPut:
		m.serveUpdate(w, sectionID, r.URL.Query())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// parseSectionPath extracts N from /library/sections/N/all.
func parseSectionPath(path string) (int, bool) {
	rest, found := strings.CutPrefix(path, "/library/sections/")
	if !found {
		return 0, false
	}
	idPart, found := strings.CutSuffix(rest, "/all")
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (m *MockPlex) serveSections(w http.ResponseWriter) {
	m.mu.Lock()
	dirs := make([]map[string]string, 0, len(m.sections))
	for _, s := range m.sections {
		dirs = append(dirs, map[string]string{
			"key":   strconv.Itoa(s.Key),
			"title": s.Title,
			"type":  s.Type,
		})
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"MediaContainer": map[string]any{
			"size":      len(dirs),
			"Directory": dirs,
		},
	})
}

func (m *MockPlex) serveList(w http.ResponseWriter, sectionID int, query url.Values) {
	m.mu.Lock()
	m.listRequests = append(m.listRequests, query)
	all := m.items[sectionID]
	reported, override := m.reported[sectionID]
	m.mu.Unlock()

	if year, err := strconv.Atoi(query.Get("year")); err == nil && year > 0 {
		filtered := make([]MockItem, 0, len(all))
		for _, item := range all {
			if item.Year == year {
				filtered = append(filtered, item)
			}
		}
		all = filtered
	}

	start, _ := strconv.Atoi(query.Get("X-Plex-Container-Start"))
	size, err := strconv.Atoi(query.Get("X-Plex-Container-Size"))
	if err != nil || size <= 0 {
		size = len(all)
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	metadata := make([]map[string]any, 0, end-start)
	for _, item := range all[start:end] {
		entry := map[string]any{
			"ratingKey": strconv.FormatInt(item.RatingKey, 10),
			"title":     item.Title,
			"addedAt":   item.AddedAt,
		}
		if item.Year > 0 {
			entry["year"] = item.Year
		}
		if item.Thumb != "" {
			entry["thumb"] = item.Thumb
		}
		metadata = append(metadata, entry)
	}

	container := map[string]any{
		"size":     len(metadata),
		"offset":   start,
		"Metadata": metadata,
	}
	switch {
	case !override:
		container["totalSize"] = len(all)
	case reported >= 0:
		container["totalSize"] = reported
	}

	writeJSON(w, map[string]any{"MediaContainer": container})
}

func (m *MockPlex) serveUpdate(w http.ResponseWriter, sectionID int, query url.Values) {
	id, _ := strconv.ParseInt(query.Get("id"), 10, 64)
	addedAt, _ := strconv.ParseInt(query.Get("addedAt.value"), 10, 64)

	m.mu.Lock()
	status := http.StatusOK
	if queue := m.statuses[id]; len(queue) > 0 {
		status = queue[0]
		m.statuses[id] = queue[1:]
	}
	m.updates = append(m.updates, UpdateCall{
		SectionID: sectionID,
		ID:        id,
		AddedAt:   addedAt,
		Locked:    query.Get("addedAt.locked") == "1",
		Status:    status,
		Query:     query,
	})
	if status < 400 {
		for i, item := range m.items[sectionID] {
			if item.RatingKey == id {
				m.items[sectionID][i].AddedAt = addedAt
			}
		}
	}
	m.mu.Unlock()

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "0")
	}
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
	}
}

// GenerateItems returns n items with rating keys starting at first, newest
// addition first.
func GenerateItems(first int64, n int) []MockItem {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	items := make([]MockItem, n)
	for i := range items {
		items[i] = MockItem{
			RatingKey: first + int64(i),
			Title:     fmt.Sprintf("Movie %d", first+int64(i)),
			Year:      1990 + i%30,
			AddedAt:   base - int64(i)*3600,
		}
	}
	return items
}
