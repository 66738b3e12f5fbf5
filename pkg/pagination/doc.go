// Package pagination provides parallel batch fetching of every page of a
// catalog query.
//
// The catalog API pages results by page and limit and reports the page
// count with each response. This package implements a worker pool that
// fetches the first page to learn the page count and then fetches the
// remaining pages in parallel.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(client, pagination.DefaultConfig())
//	export, err := fetcher.FetchAllPages(ctx, catalog.Query{Category: "books", Limit: 20})
//
// The batch fetcher:
//   - Fetches the first page to determine the page count
//   - Spawns a bounded worker pool (default 4 workers)
//   - Distributes the remaining pages across workers
//   - Returns products ordered by page
//   - Stops at the first failed page and returns partial data with the error
package pagination
