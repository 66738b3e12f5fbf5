package store

import (
	"fmt"
	"slices"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

// State is a read-only view of the store.
type State struct {
	// Canonical query. Search is the raw input; the fetch uses its debounced value.
	Search   string
	Category string
	Page     int
	Limit    int

	Products   []catalog.Product
	TotalCount int
	TotalPages int
	Loading    bool

	// Error is the message of the last failed fetch cycle, or "".
	Error string

	Categories []catalog.Category
	CatLoading bool
}

// Query returns the canonical query.
func (s State) Query() catalog.Query {
	return catalog.Query{
		Search:   s.Search,
		Category: s.Category,
		Page:     s.Page,
		Limit:    s.Limit,
	}
}

// HasPrev reports whether a previous page exists.
func (s State) HasPrev() bool {
	return s.Page > 1
}

// HasNext reports whether a next page exists.
func (s State) HasNext() bool {
	return s.Page < s.TotalPages
}

// Summary describes the visible slice of the result, for example
// "Showing 10 of 42 products". It is empty when nothing is shown.
func (s State) Summary() string {
	if len(s.Products) == 0 {
		return ""
	}
	total := s.TotalCount
	if total <= 0 {
		total = len(s.Products)
	}
	return fmt.Sprintf("Showing %d of %d products", len(s.Products), total)
}

// CategoryOptions returns the categories to offer as filters, falling back
// to catalog.FallbackCategories when none could be loaded.
func (s State) CategoryOptions() []catalog.Category {
	if len(s.Categories) > 0 || s.CatLoading {
		return s.Categories
	}
	return slices.Clone(catalog.FallbackCategories)
}

func (s State) clone() State {
	s.Products = slices.Clone(s.Products)
	s.Categories = slices.Clone(s.Categories)
	return s
}

// Stats counts fetch cycles over the lifetime of a store.
type Stats struct {
	FetchesStarted uint64
	StaleDiscarded uint64
	URLWrites      uint64
}
