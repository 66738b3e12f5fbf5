package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-browser/internal/config"
	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/history"
	"github.com/Sternrassler/catalog-browser/pkg/store"
	"github.com/Sternrassler/catalog-browser/pkg/urlstate"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const browseHelp = `Commands:
  search <text>     set the search text (debounced)
  clear             clear the search text
  category [name]   filter by category, no name shows all
  categories        list the category options
  page <n>          go to page n
  next, prev        move one page
  limit <n>         set the page size (5, 10, 15 or 20)
  goto <query|url>  navigate to an address
  back, forward     move through history (local views only)
  refetch           retry the current view
  show              print the current view
  url               print the shareable address
  help              print this help
  quit              exit`

func browseCmd(a *app) *cobra.Command {
	var initial string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the catalog interactively",
		Long: `Browse the catalog with a line-oriented prompt.

Without redis the address bar lives in memory. With --redis-addr a shared
view session is created (or attached with --session) that other processes
can drive with "catalog-browser navigate".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

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

			raw, err := rawQuery(initial)
			if err != nil {
				return err
			}
			hist, err := openHistory(ctx, cfg, rdb, raw)
			if err != nil {
				return err
			}
			if r, ok := hist.(*history.Redis); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "View session: %s\n", r.ID())
			}

			st, err := store.New(ctx, store.Config{
				Gateway:  client,
				History:  hist,
				Debounce: cfg.Store.Debounce,
			})
			if err != nil {
				return fmt.Errorf("failed to start store: %w", err)
			}
			defer st.Close()

			b := &browser{
				store:   st,
				history: hist,
				out:     cmd.OutOrStdout(),
				baseURL: cfg.API.BaseURL,
				wait:    cfg.API.Timeout + cfg.Store.Debounce,
			}
			return b.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&initial, "url", "", "initial address (query string or URL)")
	cmd.Flags().String("session", "", "attach to an existing view session (requires redis)")
	bindFlags(a.v, cmd.Flags().Lookup, map[string]string{
		config.KeyViewSession: "session",
	})

	return cmd
}

// rawQuery extracts the query string from a URL or returns s unchanged.
func rawQuery(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		return strings.TrimPrefix(s, "?"), nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return u.RawQuery, nil
}

// openHistory picks the address bar backend.
func openHistory(ctx context.Context, cfg *config.Config, rdb *redis.Client, initial string) (history.History, error) {
	switch {
	case cfg.View.Session != "":
		return history.OpenSession(ctx, rdb, cfg.View.Session)
	case rdb != nil:
		return history.NewSession(ctx, rdb, initial)
	default:
		return history.NewMemory(initial), nil
	}
}

// browser is the interactive prompt.
type browser struct {
	store   *store.Store
	history history.History
	out     io.Writer
	baseURL string
	wait    time.Duration
}

var errQuit = errors.New("quit")

func (b *browser) run(ctx context.Context, in io.Reader) error {
	b.settle(ctx)
	render(b.out, b.store.Snapshot())

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(b.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(b.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := b.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if errors.Is(err, store.ErrClosed) {
				return err
			}
			if err != nil {
				fmt.Fprintf(b.out, "error: %s\n", err)
			}
		}
	}
}

// exec runs one prompt line.
func (b *browser) exec(ctx context.Context, line string) error {
	name, arg := splitCommand(line)
	st := b.store

	var err error
	switch name {
	case "":
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprintln(b.out, browseHelp)
		return nil
	case "search":
		err = st.SetSearch(arg)
	case "clear":
		err = st.SetSearch("")
	case "category":
		err = st.SetCategory(arg)
	case "categories":
		for _, c := range st.Snapshot().CategoryOptions() {
			fmt.Fprintf(b.out, "  %s (%d)\n", c.Category, c.Count)
		}
		return nil
	case "page":
		n, perr := strconv.Atoi(arg)
		if perr != nil {
			return fmt.Errorf("page: %q is not a number", arg)
		}
		err = st.SetPage(n)
	case "next":
		if !st.Snapshot().HasNext() {
			return errors.New("already on the last page")
		}
		err = st.UpdatePage(func(p int) int { return p + 1 })
	case "prev":
		if !st.Snapshot().HasPrev() {
			return errors.New("already on the first page")
		}
		err = st.UpdatePage(func(p int) int { return p - 1 })
	case "limit":
		n, perr := strconv.Atoi(arg)
		if perr != nil {
			return fmt.Errorf("limit: %q is not a number", arg)
		}
		err = st.SetLimit(n)
	case "goto":
		err = b.navigate(ctx, arg)
	case "back", "forward":
		err = b.step(name)
	case "refetch":
		err = st.Refetch()
	case "show":
	case "url":
		share, serr := urlstate.ShareURL(b.baseURL, st.Snapshot().Query())
		if serr != nil {
			return serr
		}
		fmt.Fprintln(b.out, share)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	if err != nil {
		return err
	}

	b.settle(ctx)
	render(b.out, st.Snapshot())
	return nil
}

// navigate moves the address bar the way an external navigation does.
func (b *browser) navigate(ctx context.Context, target string) error {
	raw, err := rawQuery(target)
	if err != nil {
		return err
	}
	switch h := b.history.(type) {
	case *history.Memory:
		h.Navigate(raw)
	case *history.Redis:
		if err := h.Navigate(ctx, raw); err != nil {
			return err
		}
		// The navigation comes back through pub/sub.
		b.awaitQuery(ctx, urlstate.Decode(raw).Normalize())
	default:
		return errors.New("navigation is not supported by this history")
	}
	return nil
}

// step moves back or forward in a local history.
func (b *browser) step(direction string) error {
	h, ok := b.history.(*history.Memory)
	if !ok {
		return errors.New("back and forward need a local view")
	}
	moved := h.Back
	if direction == "forward" {
		moved = h.Forward
	}
	if !moved() {
		return fmt.Errorf("nothing to go %s to", direction)
	}
	return nil
}

// settle waits until queued navigations are applied and the view is idle.
func (b *browser) settle(ctx context.Context) {
	if err := b.store.Sync(); err != nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, b.wait)
	defer cancel()
	if err := b.store.WaitIdle(waitCtx); err != nil && !errors.Is(err, store.ErrClosed) {
		fmt.Fprintln(b.out, "still loading...")
	}
}

// awaitQuery polls until the store shows q or the wait expires.
func (b *browser) awaitQuery(ctx context.Context, q catalog.Query) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(b.wait)
	for b.store.Snapshot().Query() != q {
		select {
		case <-ticker.C:
		case <-deadline:
			return
		case <-ctx.Done():
			return
		}
	}
}

// splitCommand splits a prompt line into a lowercase command and the rest.
func splitCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	name, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}
