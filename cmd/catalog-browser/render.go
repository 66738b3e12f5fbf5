package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/catalog-browser/pkg/store"
)

// render prints a view: filters, product list, summary and pagination bar.
func render(w io.Writer, s store.State) {
	category := s.Category
	if category == "" {
		category = "all"
	}
	fmt.Fprintf(w, "Search: %q  Category: %s  Page size: %d\n", s.Search, category, s.Limit)

	switch {
	case s.Loading:
		fmt.Fprintln(w, "Loading...")
		return
	case s.Error != "":
		fmt.Fprintf(w, "Error: %s (type refetch to retry)\n", s.Error)
		return
	case len(s.Products) == 0:
		fmt.Fprintln(w, "No products found.")
		return
	}

	for i, p := range s.Products {
		fmt.Fprintf(w, "%3d. [%s] %s  $%.2f\n", (s.Page-1)*s.Limit+i+1, p.ID, p.Title, p.Price)
	}
	fmt.Fprintln(w, s.Summary())
	fmt.Fprintln(w, paginationBar(s))
}

// paginationBar renders "< prev | page 2 of 5 | next >" with disabled
// controls in brackets.
func paginationBar(s store.State) string {
	prev, next := "< prev", "next >"
	if !s.HasPrev() {
		prev = "[" + prev + "]"
	}
	if !s.HasNext() {
		next = "[" + next + "]"
	}
	return strings.Join([]string{prev, fmt.Sprintf("page %d of %d", s.Page, s.TotalPages), next}, " | ")
}
