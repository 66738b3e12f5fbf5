// Package store implements the query-state store of the catalog view.
//
// The store owns the canonical query (search, category, page, limit), keeps
// the address bar in sync with it and runs one fetch cycle per distinct
// (debounced search, category, page, limit) tuple. Only the most recently
// started cycle may write its result; earlier cycles resolving late are
// discarded.
//
// All state is owned by a single goroutine that applies events in order:
// setter calls, debounce settles, fetch results and navigation events.
// Readers get copies through Snapshot or Subscribe.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/debounce"
	"github.com/Sternrassler/catalog-browser/pkg/history"
	"github.com/Sternrassler/catalog-browser/pkg/urlstate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// DefaultDebounce is the search debounce delay used when Config.Debounce is zero.
const DefaultDebounce = 400 * time.Millisecond

// Gateway fetches raw catalog responses. *gateway.Client implements it.
type Gateway interface {
	FetchProducts(ctx context.Context, q catalog.Query) ([]byte, error)
	FetchCategories(ctx context.Context) ([]byte, error)
}

// Config holds the store configuration.
type Config struct {
	Gateway Gateway
	History history.History

	// Debounce delays the fetch after search input changes.
	Debounce time.Duration

	// Logger is optional; the global logger is used when nil.
	Logger *zerolog.Logger
}

// event is applied on the loop goroutine. ack, if set, is closed after the
// resulting state has been published.
type event struct {
	apply func()
	ack   chan struct{}
}

// Store is the query-state store of one mounted view.
type Store struct {
	gateway Gateway
	history history.History
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce  sync.Once
	debouncer  *debounce.Debouncer[string]
	stopListen func()

	// Published view, guarded by mu.
	mu       sync.RWMutex
	snapshot State
	stats    Stats
	idle     chan struct{}
	isIdle   bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	// Owned by the loop goroutine.
	state         State
	debounced     string
	searchPending bool
	epoch         uint64
	lastTuple     catalog.Query
	hasCycle      bool
	inflight      bool
	counters      Stats
}

// New mounts a store: it reads the address bar, subscribes to navigation,
// fetches categories and starts the first fetch cycle.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("debounce must be >= 0 (got %s)", cfg.Debounce)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}

	logger := log.With().Str("component", "store").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "store").Logger()
	}

	rootCtx, cancel := context.WithCancel(ctx)
	s := &Store{
		gateway: cfg.Gateway,
		history: cfg.History,
		logger:  logger,
		ctx:     rootCtx,
		cancel:  cancel,
		events:  make(chan event, 16),
		done:    make(chan struct{}),
		idle:    make(chan struct{}),
		subs:    make(map[int]func(State)),
	}
	s.debouncer = debounce.New(cfg.Debounce, func(search string) {
		s.post(func() { s.onSearchSettled(search) })
	})

	q := s.validate(urlstate.Decode(cfg.History.Location()))
	s.state = State{
		Search:     q.Search,
		Category:   q.Category,
		Page:       q.Page,
		Limit:      q.Limit,
		Products:   []catalog.Product{},
		TotalPages: 1,
	}
	s.debounced = q.Search

	stopListen, err := cfg.History.Listen(func(rawQuery string) {
		s.post(func() { s.onNavigate(rawQuery) })
	})
	if err != nil {
		s.debouncer.Stop()
		cancel()
		return nil, fmt.Errorf("listen for navigation: %w", err)
	}
	s.stopListen = stopListen

	s.loadCategories()
	s.maybeFetch()
	s.syncURL()
	s.publish()

	go s.loop()

	s.logger.Info().
		Str("search", q.Search).
		Str("category", q.Category).
		Int("page", q.Page).
		Int("limit", q.Limit).
		Msg("Store mounted")

	return s, nil
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			ev.apply()
			s.publish()
			if ev.ack != nil {
				close(ev.ack)
			}
		}
	}
}

// post queues fn without waiting for it. It is used by timers, listeners
// and fetch goroutines, and drops fn once the store is closed.
func (s *Store) post(fn func()) {
	select {
	case s.events <- event{apply: fn}:
	case <-s.done:
	}
}

// do applies fn on the loop and waits until its effect is visible.
func (s *Store) do(fn func()) error {
	ack := make(chan struct{})
	select {
	case s.events <- event{apply: fn, ack: ack}:
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-ack:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close unmounts the store. Pending debounces are dropped and results of
// cycles still in flight are ignored.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.stopListen()
		s.debouncer.Stop()
		s.cancel()
		<-s.done
		s.wg.Wait()

		s.logger.Info().Msg("Store unmounted")
	})
	return nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.clone()
}

// Stats returns fetch cycle counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Subscribe registers fn to receive every published state. fn runs on the
// store goroutine: it must return quickly and must not call store methods
// other than Snapshot and Stats.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// WaitIdle blocks until no search debounce is pending and no fetch is in
// flight.
func (s *Store) WaitIdle(ctx context.Context) error {
	s.mu.RLock()
	idle := s.idle
	s.mu.RUnlock()

	select {
	case <-idle:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSearch sets the search text. The fetch follows once input settles.
func (s *Store) SetSearch(search string) error {
	return s.UpdateSearch(func(string) string { return search })
}

// UpdateSearch sets the search text from its previous value.
func (s *Store) UpdateSearch(update func(prev string) string) error {
	return s.do(func() {
		next := update(s.state.Search)
		if next == s.state.Search {
			return
		}
		s.state.Search = next
		s.searchPending = true
		s.debouncer.Set(next)
		s.syncURL()
	})
}

// SetCategory sets the category filter and returns to page 1.
func (s *Store) SetCategory(category string) error {
	return s.UpdateCategory(func(string) string { return category })
}

// UpdateCategory sets the category filter from its previous value.
func (s *Store) UpdateCategory(update func(prev string) string) error {
	return s.do(func() {
		next := update(s.state.Category)
		if next == s.state.Category {
			return
		}
		s.state.Category = next
		s.state.Page = catalog.DefaultPage
		s.maybeFetch()
		s.syncURL()
	})
}

// SetPage moves to page. Values below 1 are clamped to 1.
func (s *Store) SetPage(page int) error {
	return s.UpdatePage(func(int) int { return page })
}

// UpdatePage sets the page from its previous value.
func (s *Store) UpdatePage(update func(prev int) int) error {
	return s.do(func() {
		next := max(update(s.state.Page), catalog.DefaultPage)
		if next == s.state.Page {
			return
		}
		s.state.Page = next
		s.maybeFetch()
		s.syncURL()
	})
}

// SetLimit sets the page size and returns to page 1. Sizes outside
// catalog.AllowedLimits are replaced by catalog.DefaultLimit.
func (s *Store) SetLimit(limit int) error {
	return s.UpdateLimit(func(int) int { return limit })
}

// UpdateLimit sets the page size from its previous value.
func (s *Store) UpdateLimit(update func(prev int) int) error {
	return s.do(func() {
		next := update(s.state.Limit)
		if !catalog.ValidLimit(next) {
			s.logger.Warn().
				Int("limit", next).
				Int("fallback", catalog.DefaultLimit).
				Msg("Invalid page size, using default")
			next = catalog.DefaultLimit
		}
		if next == s.state.Limit {
			return
		}
		s.state.Limit = next
		s.state.Page = catalog.DefaultPage
		s.maybeFetch()
		s.syncURL()
	})
}

// Refetch clears the error and starts a new cycle for the current query.
func (s *Store) Refetch() error {
	return s.do(func() {
		s.state.Error = ""
		s.startCycle(s.tuple())
	})
}

// Sync returns once every event queued before the call, such as a
// navigation delivered by the history, has been applied.
func (s *Store) Sync() error {
	return s.do(func() {})
}

// validate corrects a decoded query. Page is already clamped by the codec.
func (s *Store) validate(q catalog.Query) catalog.Query {
	if !catalog.ValidLimit(q.Limit) {
		s.logger.Warn().
			Int("limit", q.Limit).
			Int("fallback", catalog.DefaultLimit).
			Msg("Invalid page size in address, using default")
		q.Limit = catalog.DefaultLimit
	}
	return q.Normalize()
}

// tuple is the fetch-triggering view of the state.
func (s *Store) tuple() catalog.Query {
	return catalog.Query{
		Search:   s.debounced,
		Category: s.state.Category,
		Page:     s.state.Page,
		Limit:    s.state.Limit,
	}
}

func (s *Store) onSearchSettled(search string) {
	// A newer Set is pending, or a navigation replaced the input.
	if !s.searchPending || search != s.state.Search || s.debouncer.Pending() {
		return
	}
	s.searchPending = false

	s.logger.Debug().Str("search", search).Msg("Search settled")

	if search == s.debounced {
		return
	}
	s.debounced = search
	s.state.Page = catalog.DefaultPage
	s.maybeFetch()
	s.syncURL()
}

func (s *Store) onNavigate(rawQuery string) {
	q := s.validate(urlstate.Decode(rawQuery))

	s.debouncer.Cancel()
	s.searchPending = false

	s.state.Search = q.Search
	s.state.Category = q.Category
	s.state.Page = q.Page
	s.state.Limit = q.Limit
	s.debounced = q.Search

	s.logger.Debug().Str("location", rawQuery).Msg("Navigation applied")

	s.maybeFetch()
	s.syncURL()
}

// maybeFetch starts a cycle if the fetch tuple changed.
func (s *Store) maybeFetch() {
	q := s.tuple()
	if s.hasCycle && q == s.lastTuple {
		return
	}
	s.startCycle(q)
}

func (s *Store) startCycle(q catalog.Query) {
	s.epoch++
	epoch := s.epoch
	s.lastTuple = q
	s.hasCycle = true
	s.inflight = true

	s.state.Loading = true
	s.state.Error = ""

	s.counters.FetchesStarted++
	storeFetchCyclesTotal.Inc()

	s.logger.Debug().
		Uint64("epoch", epoch).
		Str("search", q.Search).
		Str("category", q.Category).
		Int("page", q.Page).
		Int("limit", q.Limit).
		Msg("Fetch cycle started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		body, err := s.gateway.FetchProducts(s.ctx, q)
		s.post(func() { s.onProducts(epoch, q, body, err) })
	}()
}

func (s *Store) onProducts(epoch uint64, q catalog.Query, body []byte, err error) {
	var page catalog.ProductPage
	if err == nil {
		page, err = catalog.DecodeProductPage(body, q.Limit)
	}

	if epoch != s.epoch {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.counters.StaleDiscarded++
		storeStaleResultsTotal.WithLabelValues(outcome).Inc()
		s.logger.Debug().
			Uint64("epoch", epoch).
			Uint64("current_epoch", s.epoch).
			Str("outcome", outcome).
			Msg("Stale fetch result discarded")
		return
	}

	s.inflight = false
	s.state.Loading = false

	if err != nil {
		empty := catalog.EmptyPage()
		s.state.Error = catalog.ErrorMessage(err)
		s.state.Products = empty.Products
		s.state.TotalCount = empty.TotalCount
		s.state.TotalPages = empty.TotalPages
		s.logger.Warn().Err(err).Uint64("epoch", epoch).Msg("Fetch cycle failed")
		return
	}

	s.state.Products = page.Products
	s.state.TotalCount = page.TotalCount
	s.state.TotalPages = page.TotalPages

	s.logger.Info().
		Uint64("epoch", epoch).
		Int("products", len(page.Products)).
		Int("total_count", page.TotalCount).
		Int("total_pages", page.TotalPages).
		Msg("Fetch cycle settled")
}

func (s *Store) loadCategories() {
	s.state.CatLoading = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		body, err := s.gateway.FetchCategories(s.ctx)
		s.post(func() { s.onCategories(body, err) })
	}()
}

func (s *Store) onCategories(body []byte, err error) {
	s.state.CatLoading = false

	if err == nil {
		var categories []catalog.Category
		categories, err = catalog.DecodeCategories(body)
		if err == nil {
			s.state.Categories = categories
			return
		}
	}

	s.logger.Error().Err(err).Msg("Failed to fetch categories")
	s.state.Categories = []catalog.Category{}
}

// syncURL replaces the address bar with the encoded canonical query.
func (s *Store) syncURL() {
	encoded := urlstate.Encode(s.state.Query())
	if encoded == s.history.Location() {
		return
	}
	if err := s.history.Replace(encoded); err != nil {
		s.logger.Warn().Err(err).Str("location", encoded).Msg("Failed to update address bar")
		return
	}
	s.counters.URLWrites++
	storeURLWritesTotal.Inc()
}

// publish copies the loop-owned state for readers and notifies subscribers.
func (s *Store) publish() {
	snapshot := s.state.clone()
	busy := s.searchPending || s.inflight || s.state.CatLoading

	s.mu.Lock()
	s.snapshot = snapshot
	s.stats = s.counters
	switch {
	case busy && s.isIdle:
		s.idle = make(chan struct{})
		s.isIdle = false
	case !busy && !s.isIdle:
		close(s.idle)
		s.isIdle = true
	}
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
}
