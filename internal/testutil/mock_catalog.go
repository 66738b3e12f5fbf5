// Package testutil provides testing utilities for the catalog browser.
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

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is a configurable mock catalog API for testing. Without
// overrides it serves Products from memory, filtering by search and category
// and paginating by page and limit like the real service.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	products []catalog.Product
	category map[catalog.ProductID]string

	requests []url.Values
	lastUA   string
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers: make(map[string]http.HandlerFunc),
		category: make(map[catalog.ProductID]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, r.URL.Query())
		mock.lastUA = r.Header.Get("User-Agent")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.lastUA = ""
}

// AddProduct adds a product in the given category to the served data set.
func (m *MockCatalog) AddProduct(p catalog.Product, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
	m.category[p.ID] = category
}

// Seed adds n generated products spread over the given categories.
func (m *MockCatalog) Seed(n int, categories ...string) {
	if len(categories) == 0 {
		categories = []string{""}
	}
	for i := 1; i <= n; i++ {
		m.AddProduct(catalog.Product{
			ID:    catalog.ProductID(strconv.Itoa(i)),
			Title: fmt.Sprintf("Product %d", i),
			Price: float64(i) * 1.5,
		}, categories[(i-1)%len(categories)])
	}
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
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

// Requests returns the query of every request received so far.
func (m *MockCatalog) Requests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockCatalog) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockCatalog) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUA
}

func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.URL.Path {
	case "/api/products":
		m.serveProducts(w, r)
	case "/api/products/categories":
		m.serveCategories(w)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
	}
}

func (m *MockCatalog) serveProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))
	category := q.Get("category")
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = catalog.DefaultLimit
	}

	m.mu.RLock()
	var matched []catalog.Product
	for _, p := range m.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) {
			continue
		}
		if category != "" && m.category[p.ID] != category {
			continue
		}
		matched = append(matched, p)
	}
	m.mu.RUnlock()

	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	data := matched[start:end]
	if data == nil {
		data = []catalog.Product{}
	}

	json.NewEncoder(w).Encode(map[string]any{
		"data": data,
		"meta": map[string]int{
			"totalCount": len(matched),
			"totalPages": catalog.PageCount(len(matched), limit),
		},
	})
}

func (m *MockCatalog) serveCategories(w http.ResponseWriter) {
	m.mu.RLock()
	counts := map[string]int{}
	var order []string
	for _, p := range m.products {
		c := m.category[p.ID]
		if c == "" {
			continue
		}
		if _, seen := counts[c]; !seen {
			order = append(order, c)
		}
		counts[c]++
	}
	m.mu.RUnlock()

	out := make([]catalog.Category, 0, len(order))
	for _, c := range order {
		out = append(out, catalog.Category{Category: c, Count: counts[c]})
	}
	json.NewEncoder(w).Encode(map[string]any{"data": out})
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 response carrying a message.
func NewServerErrorResponse(message string) MockResponse {
	body := `{}`
	if message != "" {
		b, _ := json.Marshal(map[string]string{"message": message})
		body = string(b)
	}
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 response with rate limit headers.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}
