// Package config loads the catalog browser configuration from defaults, an
// optional config file and CATALOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CATALOG_API_BASE_URL for api.base_url.
const EnvPrefix = "CATALOG"

// Keys of the configuration tree.
const (
	KeyAPIBaseURL    = "api.base_url"
	KeyAPIUserAgent  = "api.user_agent"
	KeyAPITimeout    = "api.timeout"
	KeyStoreDebounce = "store.debounce"
	KeyRedisAddr     = "redis.addr"
	KeyRedisDB       = "redis.db"
	KeyViewSession   = "view.session"
	KeyLogLevel      = "log.level"
	KeyLogPretty     = "log.pretty"
	KeyMetricsAddr   = "metrics.addr"
)

// Config is the resolved configuration.
type Config struct {
	API     *API
	Store   *Store
	Redis   *Redis
	View    *View
	Log     *Log
	Metrics *Metrics
	Viper   *viper.Viper
}

// API configures the catalog service client.
type API struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Store configures the query-state store.
type Store struct {
	Debounce time.Duration
}

// Redis is optional; an empty Addr disables shared view sessions and the
// shared rate limit state.
type Redis struct {
	Addr string
	DB   int
}

// Enabled reports whether a redis address is configured.
func (r *Redis) Enabled() bool {
	return r != nil && r.Addr != ""
}

// View selects the shared view session to attach to.
type View struct {
	Session string
}

// Log configures zerolog.
type Log struct {
	Level  string
	Pretty bool
}

// Metrics is disabled when Addr is empty.
type Metrics struct {
	Addr string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIBaseURL, "")
	v.SetDefault(KeyAPIUserAgent, "catalog-browser/0.1.0")
	v.SetDefault(KeyAPITimeout, 30*time.Second)
	v.SetDefault(KeyStoreDebounce, 400*time.Millisecond)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyViewSession, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyMetricsAddr, "")
}

// Load reads configPath (if non-empty) into v and resolves the Config.
// A nil v gets New().
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = New()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		API:     getAPIConfig(v),
		Store:   getStoreConfig(v),
		Redis:   getRedisConfig(v),
		View:    getViewConfig(v),
		Log:     getLogConfig(v),
		Metrics: getMetricsConfig(v),
		Viper:   v,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the browser cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyAPIBaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %s)", KeyAPITimeout, c.API.Timeout))
	}
	if c.Store.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0 (got %s)", KeyStoreDebounce, c.Store.Debounce))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0 (got %d)", KeyRedisDB, c.Redis.DB))
	}
	if c.View.Session != "" && !c.Redis.Enabled() {
		errs = append(errs, fmt.Errorf("%s requires %s", KeyViewSession, KeyRedisAddr))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LoggingConfig converts the log section for logging.Setup.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Log.Pretty
	return cfg
}

func getAPIConfig(v *viper.Viper) *API {
	return &API{
		BaseURL:   strings.TrimRight(v.GetString(KeyAPIBaseURL), "/"),
		UserAgent: getStringOrDefault(v, KeyAPIUserAgent, "catalog-browser/0.1.0"),
		Timeout:   getDurationOrDefault(v, KeyAPITimeout, 30*time.Second),
	}
}

func getStoreConfig(v *viper.Viper) *Store {
	return &Store{
		Debounce: getDurationOrDefault(v, KeyStoreDebounce, 400*time.Millisecond),
	}
}

func getRedisConfig(v *viper.Viper) *Redis {
	return &Redis{
		Addr: v.GetString(KeyRedisAddr),
		DB:   getIntOrDefault(v, KeyRedisDB, 0),
	}
}

func getViewConfig(v *viper.Viper) *View {
	return &View{Session: v.GetString(KeyViewSession)}
}

func getLogConfig(v *viper.Viper) *Log {
	return &Log{
		Level:  getStringOrDefault(v, KeyLogLevel, "info"),
		Pretty: v.GetBool(KeyLogPretty),
	}
}

func getMetricsConfig(v *viper.Viper) *Metrics {
	return &Metrics{Addr: v.GetString(KeyMetricsAddr)}
}
