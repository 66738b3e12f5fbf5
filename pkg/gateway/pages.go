package gateway

import (
	"context"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
)

// FetchPage fetches and normalizes a single page of q. It satisfies
// pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, q catalog.Query, pageNum int) ([]catalog.Product, int, error) {
	q.Page = pageNum
	body, err := c.FetchProducts(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	page, err := catalog.DecodeProductPage(body, q.Limit)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, 0, &Error{Class: ErrorClassDecode, Message: "decode products page", Err: err}
	}
	return page.Products, page.TotalPages, nil
}
