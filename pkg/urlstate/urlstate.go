// Package urlstate maps a catalog query to and from the query string of a
// view's address.
//
// Keys are written in a fixed order (search, category, page, limit) and a key
// is omitted when its value equals the default, so the default view has an
// empty query string:
//
//	urlstate.Encode(catalog.Query{Search: "phone", Page: 2, Limit: 10})
//	// search=phone&page=2
package urlstate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

// Query string keys.
const (
	KeySearch   = "search"
	KeyCategory = "category"
	KeyPage     = "page"
	KeyLimit    = "limit"
)

// Decode reads a query from a raw query string. A leading '?' is ignored.
// Absent or unparsable fields take their defaults and page is clamped to at
// least 1. Limit is not checked against the allowed set here.
func Decode(rawQuery string) catalog.Query {
	rawQuery = strings.TrimPrefix(rawQuery, "?")

	// Malformed pairs are dropped; the remaining pairs still decode.
	values, _ := url.ParseQuery(rawQuery)

	q := catalog.DefaultQuery()
	q.Search = values.Get(KeySearch)
	q.Category = values.Get(KeyCategory)

	if page, ok := parseInt(values.Get(KeyPage)); ok {
		q.Page = max(page, catalog.DefaultPage)
	}
	if limit, ok := parseInt(values.Get(KeyLimit)); ok {
		q.Limit = limit
	}
	return q
}

// Encode writes the query string for q. Default fields are omitted.
func Encode(q catalog.Query) string {
	var b strings.Builder
	add := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	if q.Search != "" {
		add(KeySearch, q.Search)
	}
	if q.Category != "" {
		add(KeyCategory, q.Category)
	}
	if q.Page > catalog.DefaultPage {
		add(KeyPage, strconv.Itoa(q.Page))
	}
	if q.Limit != catalog.DefaultLimit {
		add(KeyLimit, strconv.Itoa(q.Limit))
	}
	return b.String()
}

// Canonical re-encodes a raw query string in canonical form.
func Canonical(rawQuery string) string {
	return Encode(Decode(rawQuery))
}

// ShareURL returns base with its query string replaced by the encoding of q.
func ShareURL(base string, q catalog.Query) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.RawQuery = Encode(q)
	u.Fragment = ""
	return u.String(), nil
}

// FromURL decodes the query of an absolute or relative URL.
func FromURL(raw string) (catalog.Query, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return catalog.Query{}, fmt.Errorf("parse url: %w", err)
	}
	return Decode(u.RawQuery), nil
}

// parseInt accepts a leading integer the way a lenient browser parser does:
// "3", " 3", "3abc" and "+3" yield 3; "", "abc" fail.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
