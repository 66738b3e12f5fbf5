package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/pagination"
	"github.com/Sternrassler/catalog-browser/pkg/urlstate"
	"github.com/spf13/cobra"
)

func exportCmd(a *app) *cobra.Command {
	var (
		address     string
		search      string
		category    string
		limit       int
		maxPages    int
		concurrency int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every page of a view as JSON",
		Long: `Fetch all pages of a view in parallel and write the products as JSON.

The view is given either with --url (a shared address) or with the
--search, --category and --limit filters.`,
		Example: `  catalog-browser export --base-url http://localhost:5000 --category books
  catalog-browser export --url "http://shop.example.com/?search=lamp&limit=20" -o lamps.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			q := catalog.Query{Search: search, Category: category, Limit: limit}
			if address != "" {
				raw, err := rawQuery(address)
				if err != nil {
					return err
				}
				q = urlstate.Decode(raw)
			}

			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			client, err := a.gateway(rdb)
			if err != nil {
				return err
			}
			defer client.Close()

			a.serveMetrics(ctx)

			fetcher := pagination.NewBatchFetcher(client, pagination.Config{
				MaxConcurrency: concurrency,
				MaxPages:       maxPages,
			})
			export, fetchErr := fetcher.FetchAllPages(ctx, q)
			if export == nil {
				return fetchErr
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := writeJSON(w, export); err != nil {
				return err
			}

			// Partial exports are written and still reported as failures.
			return fetchErr
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&address, "url", "", "shared address of the view (overrides the filters)")
	flags.StringVar(&search, "search", "", "search text")
	flags.StringVar(&category, "category", "", "category filter")
	flags.IntVar(&limit, "limit", catalog.DefaultLimit, "page size (5, 10, 15 or 20)")
	flags.IntVar(&maxPages, "max-pages", pagination.DefaultMaxPages, "stop after this many pages")
	flags.IntVar(&concurrency, "concurrency", pagination.DefaultConfig().MaxConcurrency, "parallel page requests")
	flags.StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}
