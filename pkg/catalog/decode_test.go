package catalog

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseProductsResponse_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		limit     int
		wantShape Shape
		wantLen   int
		wantTotal int
		wantPages int
	}{
		{
			name:      "bare list",
			body:      `[{"id":1,"title":"a","price":1},{"id":2,"title":"b","price":2}]`,
			limit:     10,
			wantShape: ShapeList,
			wantLen:   2,
			wantTotal: 2,
			wantPages: 1,
		},
		{
			name:      "data with meta",
			body:      `{"data":[{"id":1},{"id":2},{"id":3},{"id":4},{"id":5}],"meta":{"totalCount":25,"totalPages":3}}`,
			limit:     10,
			wantShape: ShapeEnvelope,
			wantLen:   5,
			wantTotal: 25,
			wantPages: 3,
		},
		{
			name:      "meta without totalPages computes it",
			body:      `{"data":[{"id":1}],"meta":{"totalCount":41}}`,
			limit:     20,
			wantShape: ShapeEnvelope,
			wantLen:   1,
			wantTotal: 41,
			wantPages: 3,
		},
		{
			name:      "top-level total",
			body:      `{"products":[{"id":"x"}],"total":12}`,
			limit:     5,
			wantShape: ShapeEnvelope,
			wantLen:   1,
			wantTotal: 12,
			wantPages: 3,
		},
		{
			name:      "data object with products",
			body:      `{"data":{"products":[{"id":1},{"id":2}]},"totalCount":2,"totalPages":1}`,
			limit:     10,
			wantShape: ShapeEnvelope,
			wantLen:   2,
			wantTotal: 2,
			wantPages: 1,
		},
		{
			name:      "totalCount wins over total",
			body:      `{"data":[],"totalCount":30,"total":99}`,
			limit:     10,
			wantShape: ShapeEnvelope,
			wantLen:   0,
			wantTotal: 30,
			wantPages: 3,
		},
		{
			name:      "envelope without list is empty",
			body:      `{"meta":{}}`,
			limit:     10,
			wantShape: ShapeEnvelope,
			wantLen:   0,
			wantTotal: 0,
			wantPages: 1,
		},
		{
			name:      "zero totalPages is clamped",
			body:      `{"data":[],"meta":{"totalCount":0,"totalPages":0}}`,
			limit:     10,
			wantShape: ShapeEnvelope,
			wantLen:   0,
			wantTotal: 0,
			wantPages: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseProductsResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseProductsResponse() error = %v", err)
			}
			if resp.Shape != tt.wantShape {
				t.Errorf("Shape = %v, want %v", resp.Shape, tt.wantShape)
			}

			page := resp.Page(tt.limit)
			if len(page.Products) != tt.wantLen {
				t.Errorf("len(Products) = %d, want %d", len(page.Products), tt.wantLen)
			}
			if page.Products == nil {
				t.Error("Products should never be nil")
			}
			if page.TotalCount != tt.wantTotal {
				t.Errorf("TotalCount = %d, want %d", page.TotalCount, tt.wantTotal)
			}
			if page.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantPages)
			}
		})
	}
}

func TestParseProductsResponse_Invalid(t *testing.T) {
	bodies := []string{
		``,
		`null`,
		`"text"`,
		`42`,
		`{"data":"nope"}`,
		`{"data":[{"id":true}]}`,
		`[1,2`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			_, err := ParseProductsResponse([]byte(body))
			if !errors.Is(err, ErrShape) {
				t.Errorf("error = %v, want ErrShape", err)
			}
		})
	}
}

func TestProductID_Decoding(t *testing.T) {
	page, err := DecodeProductPage([]byte(`[{"id":7,"title":"seven"},{"id":"sku-8","title":"eight"}]`), 10)
	if err != nil {
		t.Fatalf("DecodeProductPage() error = %v", err)
	}

	if page.Products[0].ID != "7" {
		t.Errorf("ID = %q, want %q", page.Products[0].ID, "7")
	}
	if page.Products[1].ID != "sku-8" {
		t.Errorf("ID = %q, want %q", page.Products[1].ID, "sku-8")
	}
}

func TestDecodeCategories(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "bare list", body: `[{"category":"books","count":4}]`, want: 1},
		{name: "data envelope", body: `{"data":[{"category":"books","count":4},{"category":"home","count":1}]}`, want: 2},
		{name: "names only", body: `["books","home","sports"]`, want: 3},
		{name: "empty envelope", body: `{}`, want: 0},
		{name: "garbage", body: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCategories([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCategories() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

type remoteErr struct{ msg string }

func (e remoteErr) Error() string         { return "status 500" }
func (e remoteErr) RemoteMessage() string { return e.msg }

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "remote message", err: remoteErr{msg: "catalog offline"}, want: "catalog offline"},
		{name: "wrapped remote message", err: fmt.Errorf("fetch: %w", remoteErr{msg: "bad category"}), want: "bad category"},
		{name: "empty remote message uses error text", err: remoteErr{}, want: "status 500"},
		{name: "generic error", err: errors.New("connection refused"), want: "connection refused"},
		{name: "no message", err: errors.New(""), want: DefaultErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
