package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-browser/internal/testutil"
	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/ratelimit"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := New(DefaultConfig(baseURL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://shop.example.com"),
		},
		{
			name:        "missing base url",
			config:      DefaultConfig(""),
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "unsupported scheme",
			config:      DefaultConfig("ftp://shop.example.com"),
			expectError: true,
			errorMsg:    "base url must be http or https",
		},
		{
			name: "empty user agent",
			config: Config{
				BaseURL: "https://shop.example.com",
				Timeout: time.Second,
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "zero timeout",
			config: Config{
				BaseURL:   "https://shop.example.com",
				UserAgent: "test/1.0",
			},
			expectError: true,
			errorMsg:    "timeout must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Error = %q, want it to contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected client, got nil")
			}
		})
	}
}

func TestNew_FillsDefaultPaths(t *testing.T) {
	client, err := New(Config{
		BaseURL:   "http://localhost:3000",
		UserAgent: "test/1.0",
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.config.ProductsPath != DefaultProductsPath {
		t.Errorf("ProductsPath = %q, want %q", client.config.ProductsPath, DefaultProductsPath)
	}
	if client.config.CategoriesPath != DefaultCategoriesPath {
		t.Errorf("CategoriesPath = %q, want %q", client.config.CategoriesPath, DefaultCategoriesPath)
	}
	if client.config.MaxBodyBytes <= 0 {
		t.Errorf("MaxBodyBytes = %d, want > 0", client.config.MaxBodyBytes)
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{"network error", 0, io.EOF, ErrorClassNetwork},
		{"client error 404", 404, nil, ErrorClassClient},
		{"client error 400", 400, nil, ErrorClassClient},
		{"rate limit 429", 429, nil, ErrorClassRateLimit},
		{"server error 500", 500, nil, ErrorClassServer},
		{"server error 503", 503, nil, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			if result := client.classifyError(resp, tt.err); result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFetchProducts_SendsQuery(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.Seed(3)

	client := newTestClient(t, mock.URL())

	q := catalog.Query{Search: "red shoes", Category: "fashion", Page: 2, Limit: 5}
	if _, err := client.FetchProducts(context.Background(), q); err != nil {
		t.Fatalf("FetchProducts() error = %v", err)
	}

	requests := mock.Requests()
	if len(requests) != 1 {
		t.Fatalf("RequestCount = %d, want 1", len(requests))
	}
	got := requests[0]
	want := map[string]string{"search": "red shoes", "category": "fashion", "page": "2", "limit": "5"}
	for key, value := range want {
		if got.Get(key) != value {
			t.Errorf("query %s = %q, want %q", key, got.Get(key), value)
		}
	}
	if mock.LastUserAgent() != client.config.UserAgent {
		t.Errorf("User-Agent = %q, want %q", mock.LastUserAgent(), client.config.UserAgent)
	}
}

func TestFetchProducts_EmptyFiltersStillSent(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	if _, err := client.FetchProducts(context.Background(), catalog.DefaultQuery()); err != nil {
		t.Fatalf("FetchProducts() error = %v", err)
	}

	got := mock.Requests()[0]
	for _, key := range []string{"search", "category"} {
		if _, ok := got[key]; !ok {
			t.Errorf("query key %q missing, want it sent empty", key)
		}
	}
}

func TestFetchCategories(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.Seed(4, "books", "home")

	client := newTestClient(t, mock.URL())
	body, err := client.FetchCategories(context.Background())
	if err != nil {
		t.Fatalf("FetchCategories() error = %v", err)
	}

	categories, err := catalog.DecodeCategories(body)
	if err != nil {
		t.Fatalf("DecodeCategories() error = %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("len(categories) = %d, want 2", len(categories))
	}
	if categories[0].Category != "books" || categories[0].Count != 2 {
		t.Errorf("categories[0] = %+v, want books/2", categories[0])
	}
}

func TestDo_ErrorResponses(t *testing.T) {
	tests := []struct {
		name           string
		response       testutil.MockResponse
		expectedClass  ErrorClass
		expectedStatus int
		expectedRemote string
	}{
		{
			name:           "server error with message",
			response:       testutil.NewServerErrorResponse("Database is down"),
			expectedClass:  ErrorClassServer,
			expectedStatus: 500,
			expectedRemote: "Database is down",
		},
		{
			name:           "server error without message",
			response:       testutil.NewServerErrorResponse(""),
			expectedClass:  ErrorClassServer,
			expectedStatus: 500,
		},
		{
			name:           "rate limited",
			response:       testutil.NewRateLimitResponse(),
			expectedClass:  ErrorClassRateLimit,
			expectedStatus: 429,
			expectedRemote: "Rate limit exceeded",
		},
		{
			name:           "not found with plain body",
			response:       testutil.MockResponse{StatusCode: 404, Body: "no such thing"},
			expectedClass:  ErrorClassClient,
			expectedStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog()
			defer mock.Close()
			mock.SetResponse(DefaultProductsPath, tt.response)

			client := newTestClient(t, mock.URL())
			_, err := client.FetchProducts(context.Background(), catalog.DefaultQuery())
			if err == nil {
				t.Fatal("FetchProducts() error = nil, want error")
			}

			var gwErr *Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if gwErr.Class != tt.expectedClass {
				t.Errorf("Class = %q, want %q", gwErr.Class, tt.expectedClass)
			}
			if gwErr.StatusCode != tt.expectedStatus {
				t.Errorf("StatusCode = %d, want %d", gwErr.StatusCode, tt.expectedStatus)
			}
			if gwErr.Remote != tt.expectedRemote {
				t.Errorf("Remote = %q, want %q", gwErr.Remote, tt.expectedRemote)
			}
		})
	}
}

func TestDo_ErrorMessageSurfacesRemote(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(DefaultProductsPath, testutil.NewServerErrorResponse("Database is down"))

	client := newTestClient(t, mock.URL())
	_, err := client.FetchProducts(context.Background(), catalog.DefaultQuery())

	if got := catalog.ErrorMessage(err); got != "Database is down" {
		t.Errorf("ErrorMessage() = %q, want %q", got, "Database is down")
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.FetchProducts(context.Background(), catalog.DefaultQuery())

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if gwErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %q, want %q", gwErr.Class, ErrorClassNetwork)
	}
}

func TestDo_BodyTooLarge(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(DefaultProductsPath, testutil.NewJSONResponse(`[`+strings.Repeat(`{"id":1},`, 100)+`{"id":2}]`))

	cfg := DefaultConfig(mock.URL())
	cfg.MaxBodyBytes = 64
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.FetchProducts(context.Background(), catalog.DefaultQuery())
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("FetchProducts() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	tracker := ratelimit.NewTracker(nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	headers := http.Header{}
	headers.Set(ratelimit.HeaderRemaining, "0")
	headers.Set(ratelimit.HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	cfg := DefaultConfig(mock.URL())
	cfg.RateLimiter = tracker
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.FetchProducts(context.Background(), catalog.DefaultQuery())
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("FetchProducts() error = %v, want ErrRateLimited", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0 for a blocked request", mock.RequestCount())
	}
}

func TestDo_UpdatesLimiterFromHeaders(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(DefaultProductsPath, testutil.NewRateLimitResponse())

	tracker := ratelimit.NewTracker(nil, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	cfg := DefaultConfig(mock.URL())
	cfg.RateLimiter = tracker
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.FetchProducts(context.Background(), catalog.DefaultQuery()); err == nil {
		t.Fatal("FetchProducts() error = nil, want 429 error")
	}

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0 after 429", state.Remaining)
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.Seed(12)

	client := newTestClient(t, mock.URL())
	products, totalPages, err := client.FetchPage(context.Background(), catalog.Query{Page: 1, Limit: 5}, 3)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if totalPages != 3 {
		t.Errorf("totalPages = %d, want 3", totalPages)
	}
	if len(products) != 2 {
		t.Errorf("len(products) = %d, want 2", len(products))
	}
	if got := mock.Requests()[0].Get("page"); got != "3" {
		t.Errorf("page sent = %q, want %q", got, "3")
	}
}

func TestFetchPage_UnrecognizedBody(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(DefaultProductsPath, testutil.NewJSONResponse(`"nope"`))

	client := newTestClient(t, mock.URL())
	_, _, err := client.FetchPage(context.Background(), catalog.DefaultQuery(), 1)

	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Class != ErrorClassDecode {
		t.Errorf("FetchPage() error = %v, want decode *Error", err)
	}
	if !errors.Is(err, catalog.ErrShape) {
		t.Errorf("FetchPage() error = %v, want it to wrap catalog.ErrShape", err)
	}
}
