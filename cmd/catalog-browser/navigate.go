package main

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/catalog-browser/pkg/history"
	"github.com/Sternrassler/catalog-browser/pkg/urlstate"
	"github.com/spf13/cobra"
)

func navigateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <session-id> <query|url>",
		Short: "Navigate a shared view session",
		Long: `Move a shared view session to a new address, the way a browser's
back button or a pasted link would. Every browse process attached to the
session follows the navigation. Requires redis.`,
		Example: `  catalog-browser navigate --redis-addr localhost:6379 \
    6f1c1f5e-7d2a-4a39-9a56-0d4b8e0c1a11 "category=books&page=2"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled() {
				return errors.New("navigate requires redis (set --redis-addr or CATALOG_REDIS_ADDR)")
			}

			ctx := cmd.Context()
			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			session, err := history.OpenSession(ctx, rdb, args[0])
			if err != nil {
				return err
			}

			raw, err := rawQuery(args[1])
			if err != nil {
				return err
			}
			if err := session.Navigate(ctx, raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Session %s -> ?%s\n", session.ID(), urlstate.Canonical(raw))
			return nil
		},
	}
}
