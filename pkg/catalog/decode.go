package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrShape is returned when a response body matches none of the known shapes.
var ErrShape = errors.New("unexpected response shape")

// Shape tags the form a products response arrived in.
type Shape int

const (
	// ShapeList is a bare JSON array of products.
	ShapeList Shape = iota + 1

	// ShapeEnvelope is an object carrying data/products and pagination meta.
	ShapeEnvelope
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// ProductsResponse is a decoded products response before normalization.
// TotalCount and TotalPages are nil when the server did not send them.
type ProductsResponse struct {
	Shape      Shape
	Products   []Product
	TotalCount *int
	TotalPages *int
}

type pageMeta struct {
	TotalCount *int `json:"totalCount"`
	Total      *int `json:"total"`
	TotalPages *int `json:"totalPages"`
}

func (m pageMeta) count() *int {
	if m.TotalCount != nil {
		return m.TotalCount
	}
	return m.Total
}

type envelope struct {
	pageMeta
	Data     json.RawMessage `json:"data"`
	Products []Product       `json:"products"`
	Meta     *pageMeta       `json:"meta"`
}

// ParseProductsResponse decodes a products response body.
//
// Accepted shapes:
//
//	[...]
//	{"data": [...], "meta": {"totalCount": n, "totalPages": n}}
//	{"data": {"products": [...]}, "total": n}
//	{"products": [...], "totalCount": n}
//
// Pagination fields are read from "meta" when present, otherwise from the
// top-level object. "totalCount" wins over "total".
func ParseProductsResponse(body []byte) (*ProductsResponse, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrShape)
	}

	switch body[0] {
	case '[':
		var list []Product
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return &ProductsResponse{Shape: ShapeList, Products: list}, nil

	case '{':
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}

		products, err := env.products()
		if err != nil {
			return nil, err
		}

		meta := env.pageMeta
		if env.Meta != nil {
			meta = *env.Meta
		}
		return &ProductsResponse{
			Shape:      ShapeEnvelope,
			Products:   products,
			TotalCount: meta.count(),
			TotalPages: meta.TotalPages,
		}, nil

	default:
		return nil, fmt.Errorf("%w: body starts with %q", ErrShape, body[0])
	}
}

// products resolves the product list: data as an array, data.products, then
// the top-level products field. A missing list is an empty page.
func (e envelope) products() ([]Product, error) {
	data := bytes.TrimSpace(e.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		switch data[0] {
		case '[':
			var list []Product
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, fmt.Errorf("%w: data: %v", ErrShape, err)
			}
			return nonNil(list), nil
		case '{':
			var inner struct {
				Products []Product `json:"products"`
			}
			if err := json.Unmarshal(data, &inner); err != nil {
				return nil, fmt.Errorf("%w: data: %v", ErrShape, err)
			}
			return nonNil(inner.Products), nil
		default:
			return nil, fmt.Errorf("%w: data is neither list nor object", ErrShape)
		}
	}
	return nonNil(e.Products), nil
}

// Page normalizes the response for a view using the given page size. A
// missing total falls back to the number of products received; a missing
// page count is computed from the total.
func (r *ProductsResponse) Page(limit int) ProductPage {
	products := nonNil(r.Products)

	total := len(products)
	if r.TotalCount != nil {
		total = *r.TotalCount
	}
	if total < 0 {
		total = 0
	}

	var pages int
	if r.TotalPages != nil {
		pages = *r.TotalPages
	} else {
		basis := total
		if basis == 0 {
			basis = len(products)
		}
		pages = PageCount(basis, limit)
	}
	if pages < 1 {
		pages = 1
	}

	return ProductPage{Products: products, TotalCount: total, TotalPages: pages}
}

// DecodeProductPage parses and normalizes a products response body.
func DecodeProductPage(body []byte, limit int) (ProductPage, error) {
	resp, err := ParseProductsResponse(body)
	if err != nil {
		return ProductPage{}, err
	}
	return resp.Page(limit), nil
}

// DecodeCategories parses a categories response: a bare array or an object
// with a "data" array.
func DecodeCategories(body []byte) ([]Category, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrShape)
	}

	switch body[0] {
	case '[':
		var list []Category
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return nonNil(list), nil
	case '{':
		var env struct {
			Data []Category `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return nonNil(env.Data), nil
	default:
		return nil, fmt.Errorf("%w: body starts with %q", ErrShape, body[0])
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
