// Package catalog defines the product catalog domain: the canonical query,
// products and categories, page arithmetic and the decoders that normalize
// the catalog API's response shapes.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Query defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// AllowedLimits are the page sizes a view may use.
var AllowedLimits = []int{5, 10, 15, 20}

// Query is the canonical query state of a catalog view.
type Query struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
}

// DefaultQuery returns the query of an empty address bar.
func DefaultQuery() Query {
	return Query{Page: DefaultPage, Limit: DefaultLimit}
}

// IsDefault reports whether every field equals its default.
func (q Query) IsDefault() bool {
	return q == DefaultQuery()
}

// Normalize clamps the page to at least 1 and replaces a limit outside
// AllowedLimits with DefaultLimit.
func (q Query) Normalize() Query {
	if q.Page < DefaultPage {
		q.Page = DefaultPage
	}
	q.Limit = NormalizeLimit(q.Limit)
	return q
}

// ValidLimit reports whether limit is one of AllowedLimits.
func ValidLimit(limit int) bool {
	return slices.Contains(AllowedLimits, limit)
}

// NormalizeLimit returns limit if it is allowed, DefaultLimit otherwise.
func NormalizeLimit(limit int) int {
	if ValidLimit(limit) {
		return limit
	}
	return DefaultLimit
}

// PageCount returns max(1, ceil(total/limit)).
func PageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

// ProductID identifies a product within a result set. Catalog backends send
// either numeric or string ids; both decode to the same representation.
type ProductID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Product is a single catalog entry.
type Product struct {
	ID    ProductID `json:"id"`
	Title string    `json:"title"`
	Price float64   `json:"price"`
	Image string    `json:"image,omitempty"`
}

// Category is a filter option with the number of products it matches.
type Category struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// UnmarshalJSON also accepts a bare category name.
func (c *Category) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Category{Category: name}
		return nil
	}
	type plain Category
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Category(p)
	return nil
}

// FallbackCategories is the static filter list used when the categories
// resource is unavailable.
var FallbackCategories = []Category{
	{Category: "electronics"},
	{Category: "fashion"},
	{Category: "books"},
	{Category: "home"},
	{Category: "sports"},
}

// ProductPage is one normalized page of results.
type ProductPage struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"totalCount"`
	TotalPages int       `json:"totalPages"`
}

// EmptyPage is the list state after a failed fetch.
func EmptyPage() ProductPage {
	return ProductPage{Products: []Product{}, TotalCount: 0, TotalPages: 1}
}
