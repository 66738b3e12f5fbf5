package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/catalog-browser/internal/config"
	"github.com/Sternrassler/catalog-browser/pkg/gateway"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/Sternrassler/catalog-browser/pkg/metrics"
	"github.com/Sternrassler/catalog-browser/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app carries the configuration shared by all subcommands.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "catalog-browser",
		Short: "Browse a remote product catalog from the terminal",
		Long: `catalog-browser fetches a paginated, filterable, searchable product list
from a catalog service and keeps a shareable address (query string) in
sync with the current view.

Configuration is read from flags, CATALOG_* environment variables and an
optional config file, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (yaml, json or toml)")
	flags.String("base-url", "", "catalog service base URL")
	flags.String("user-agent", "", "User-Agent sent to the catalog service")
	flags.Duration("timeout", 0, "timeout of a single catalog request")
	flags.Duration("debounce", 0, "search input debounce delay")
	flags.String("redis-addr", "", "redis address for shared view sessions and rate limit state")
	flags.Int("redis-db", 0, "redis database")
	flags.String("log-level", "", "log level (debug, info, warn, error, disabled)")
	flags.Bool("log-pretty", false, "human-readable log output")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	bindFlags(a.v, flags.Lookup, map[string]string{
		config.KeyAPIBaseURL:    "base-url",
		config.KeyAPIUserAgent:  "user-agent",
		config.KeyAPITimeout:    "timeout",
		config.KeyStoreDebounce: "debounce",
		config.KeyRedisAddr:     "redis-addr",
		config.KeyRedisDB:       "redis-db",
		config.KeyLogLevel:      "log-level",
		config.KeyLogPretty:     "log-pretty",
		config.KeyMetricsAddr:   "metrics-addr",
	})

	rootCmd.AddCommand(
		browseCmd(a),
		exportCmd(a),
		navigateCmd(a),
		versionCmd(),
	)

	return rootCmd
}

// load resolves the configuration once and sets up logging.
func (a *app) load() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.LoggingConfig())
	a.logger = logging.NewLogger("cli")
	a.cfg = cfg
	return cfg, nil
}

// redisClient connects to redis when it is configured. It returns nil
// otherwise.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if !a.cfg.Redis.Enabled() {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: a.cfg.Redis.Addr,
		DB:   a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}

	a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to redis")
	return rdb, nil
}

// gateway builds the catalog client. The rate limit state is shared through
// rdb when it is non-nil.
func (a *app) gateway(rdb *redis.Client) (*gateway.Client, error) {
	gcfg := gateway.DefaultConfig(a.cfg.API.BaseURL)
	gcfg.UserAgent = a.cfg.API.UserAgent
	gcfg.Timeout = a.cfg.API.Timeout
	gcfg.RateLimiter = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))

	client, err := gateway.New(gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}
	return client, nil
}

// serveMetrics starts the metrics endpoint when an address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// bindFlags binds viper keys to the named flags.
func bindFlags(v *viper.Viper, lookup func(string) *pflag.Flag, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}
