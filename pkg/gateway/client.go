// Package gateway provides the HTTP client for the remote catalog API. Every
// call is a single attempt; failures are classified and returned as *Error.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for catalog gateway operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})
)

// Default endpoint paths of the catalog API.
const (
	DefaultProductsPath   = "/api/products"
	DefaultCategoriesPath = "/api/products/categories"
)

// Limiter gates outgoing requests and learns from response headers.
// *ratelimit.Tracker implements it.
type Limiter interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Client talks to the catalog API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog service, e.g. "https://shop.example.com".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single request.
	Timeout time.Duration

	// Endpoint paths relative to BaseURL.
	ProductsPath   string
	CategoriesPath string

	// MaxBodyBytes caps how much of a response is read.
	MaxBodyBytes int64

	// RateLimiter is optional.
	RateLimiter Limiter
}

// DefaultConfig returns a default configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      "catalog-browser/0.1.0",
		Timeout:        30 * time.Second,
		ProductsPath:   DefaultProductsPath,
		CategoriesPath: DefaultCategoriesPath,
		MaxBodyBytes:   8 << 20,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.ProductsPath == "" {
		cfg.ProductsPath = DefaultProductsPath
	}
	if cfg.CategoriesPath == "" {
		cfg.CategoriesPath = DefaultCategoriesPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		limiter: cfg.RateLimiter,
		config:  cfg,
		logger:  log.With().Str("component", "catalog-gateway").Logger(),
	}, nil
}

// productParams is the query contract of the products endpoint.
type productParams struct {
	Search   string `url:"search"`
	Category string `url:"category"`
	Page     int    `url:"page"`
	Limit    int    `url:"limit"`
}

// FetchProducts requests one page of products and returns the raw response
// body. Normalizing the body is left to catalog.DecodeProductPage.
func (c *Client) FetchProducts(ctx context.Context, q catalog.Query) ([]byte, error) {
	values, err := query.Values(productParams{
		Search:   q.Search,
		Category: q.Category,
		Page:     q.Page,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode product query: %w", err)
	}
	return c.get(ctx, c.config.ProductsPath, values)
}

// FetchCategories requests the category list and returns the raw body.
func (c *Client) FetchCategories(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.config.CategoriesPath, nil)
}

// get resolves path against the base URL and performs a GET.
func (c *Client) get(ctx context.Context, path string, values url.Values) ([]byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(values) > 0 {
		u.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Do performs a request with rate limiting and error classification and
// returns the body of a 2xx response.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.limiter != nil {
		allowed, err := c.limiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
		} else if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			catalogRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			catalogErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &Error{
				Class:   ErrorClassRateLimit,
				Message: "too many requests, try again shortly",
				Err:     ErrRateLimited,
			}
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := c.classifyError(nil, err)
		catalogErrorsTotal.WithLabelValues(string(class)).Inc()
		catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &Error{
			Class:   class,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if c.limiter != nil {
		if err := c.limiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	status := strconv.Itoa(resp.StatusCode)
	catalogRequestsTotal.WithLabelValues(endpoint, status).Inc()

	body, readErr := c.readBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := c.classifyError(resp, nil)
		catalogErrorsTotal.WithLabelValues(string(class)).Inc()

		gwErr := &Error{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    strings.TrimSpace(strings.TrimPrefix(resp.Status, status)),
		}
		if readErr == nil {
			gwErr.Remote = remoteMessage(body)
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("remote_message", gwErr.Remote).
			Msg("Catalog request error")
		return nil, gwErr
	}

	if readErr != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "read response body",
			Err:        readErr,
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Catalog request complete")

	return body, nil
}

// readBody reads at most MaxBodyBytes.
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// classifyError categorizes a failure for observability and messages.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that reached us unresolved.
		return ErrorClassServer
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}
