package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages caps how many pages are fetched; 0 means DefaultMaxPages.
	MaxPages int
}

// DefaultMaxPages bounds an export when no cap is configured. The page
// count comes from the server and is not trusted beyond this.
const DefaultMaxPages = 1000

// DefaultConfig returns a configuration that stays well inside the catalog
// API's rate limit.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches a single page of a query. *gateway.Client implements it.
type PageFetcher interface {
	// FetchPage fetches page pageNum of q and returns its products and the
	// total page count.
	FetchPage(ctx context.Context, q catalog.Query, pageNum int) (products []catalog.Product, totalPages int, err error)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Products   []catalog.Product
	Error      error
}

// Export is the combined result of a multi-page fetch.
type Export struct {
	Query      catalog.Query     `json:"query"`
	TotalPages int               `json:"totalPages"`
	Fetched    int               `json:"fetchedPages"`
	Products   []catalog.Product `json:"products"`
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches every page of q with a worker pool. Page 1 is
// fetched first to learn the page count; the returned products are ordered
// by page. If a page fails, the pages fetched so far are returned along with
// the error.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, q catalog.Query) (*Export, error) {
	start := time.Now()
	q = q.Normalize()

	firstPage, totalPages, err := bf.fetcher.FetchPage(ctx, q, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	lastPage := min(totalPages, bf.config.MaxPages)

	log.Info().
		Str("search", q.Search).
		Str("category", q.Category).
		Int("total_pages", totalPages).
		Int("fetching", lastPage).
		Msg("Starting parallel page fetch")

	pages := map[int][]catalog.Product{1: firstPage}

	var fetchErr error
	if lastPage > 1 {
		fetchErr = bf.fetchRest(ctx, q, lastPage, pages)
	}

	export := &Export{
		Query:      q,
		TotalPages: totalPages,
		Fetched:    len(pages),
		Products:   flatten(pages),
	}

	if fetchErr != nil {
		log.Warn().
			Err(fetchErr).
			Int("fetched_pages", export.Fetched).
			Int("total_pages", lastPage).
			Msg("Worker error - returning partial results")
		return export, fmt.Errorf("worker error (partial data: %d/%d pages): %w", export.Fetched, lastPage, fetchErr)
	}

	log.Info().
		Int("pages", export.Fetched).
		Int("products", len(export.Products)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return export, nil
}

// fetchRest fetches pages 2..lastPage into pages.
func (bf *BatchFetcher) fetchRest(ctx context.Context, q catalog.Query, lastPage int, pages map[int][]catalog.Product) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int)
	go func() {
		defer close(pageQueue)
		for page := 2; page <= lastPage; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	pageResults := make(chan PageResult, bf.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < min(bf.config.MaxConcurrency, lastPage-1); i++ {
		wg.Add(1)
		go bf.worker(ctx, q, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
				cancel()
			}
			continue
		}
		pages[result.PageNumber] = result.Products
	}

	if firstErr == nil && ctx.Err() != nil && len(pages) < lastPage {
		return ctx.Err()
	}
	return firstErr
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, q catalog.Query, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		products, _, err := bf.fetcher.FetchPage(pageCtx, q, pageNum)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
		}

		// The collector drains results until every worker is done.
		results <- PageResult{PageNumber: pageNum, Products: products, Error: err}
		if err != nil {
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// flatten concatenates pages in page order.
func flatten(pages map[int][]catalog.Product) []catalog.Product {
	numbers := make([]int, 0, len(pages))
	total := 0
	for n, products := range pages {
		numbers = append(numbers, n)
		total += len(products)
	}
	sort.Ints(numbers)

	out := make([]catalog.Product, 0, total)
	for _, n := range numbers {
		out = append(out, pages[n]...)
	}
	return out
}
