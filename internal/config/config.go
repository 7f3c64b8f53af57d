// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/notify"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Exchanges []ExchangeConfig `toml:"exchanges"`
	Detector  DetectorConfig   `toml:"detector"`
	Redis     RedisConfig      `toml:"redis"`
	Postgres  PostgresConfig   `toml:"postgres"`
	S3        S3Config         `toml:"s3"`
	Server    ServerConfig     `toml:"server"`
	Notify    NotifyConfig     `toml:"notify"`
	Status    StatusConfig     `toml:"status"`
	Mode      string           `toml:"mode"`
	LogLevel  string           `toml:"log_level"`
}

// ExchangeConfig describes one venue feed. Zero durations fall back to
// the connection defaults (1s initial delay, 30s cap, 10s timeouts).
type ExchangeConfig struct {
	// ExchangeID is the operator-chosen identifier stamped on every
	// update, opportunity, and log line from this venue.
	ExchangeID string `toml:"exchange_id"`
	// Variant selects the wire format decoder: "binance", "bybit",
	// "coinbase", or "okx". Defaults to ExchangeID, which covers the
	// common case of one venue per format.
	Variant          string `toml:"variant"`
	Endpoint         string `toml:"endpoint"`
	SubscribePayload string `toml:"subscribe_payload"`

	// MaxStalenessSeconds overrides detector.max_staleness_seconds for
	// this venue when positive.
	MaxStalenessSeconds float64 `toml:"max_staleness_seconds"`

	ReconnectInitialDelay duration `toml:"reconnect_initial_delay"`
	ReconnectMaxDelay     duration `toml:"reconnect_max_delay"`
	BackoffResetAfter     duration `toml:"backoff_reset_after"`
	SubscribeTimeout      duration `toml:"subscribe_timeout"`
	DegradedAfter         duration `toml:"degraded_after"`
	DecodeErrorLimit      int      `toml:"decode_error_limit"`
}

// DetectorConfig holds spread detection parameters.
type DetectorConfig struct {
	// MinProfitPct is the inclusive emission threshold in percent.
	MinProfitPct float64 `toml:"min_profit_pct"`
	// MaxStalenessSeconds is how old a quote may be and still join a
	// scan, unless a venue overrides it.
	MaxStalenessSeconds float64 `toml:"max_staleness_seconds"`
	// MinScanInterval floors how often book updates turn into scans.
	MinScanInterval duration `toml:"min_scan_interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the
// opportunity history store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the
// history archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveInterval schedules automatic history archival runs; zero
	// leaves archival to the archive run endpoint only.
	ArchiveInterval duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when non-empty. Health, metrics, and the
	// websocket stay open.
	APIKey string `toml:"api_key"`
	// RateLimit caps requests per client per RateLimitWindow; zero
	// disables rate limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// Cooldown throttles repeated alerts for the same route or venue.
	Cooldown duration `toml:"cooldown"`
}

// StatusConfig controls the periodic status summary.
type StatusConfig struct {
	// Interval between status report log lines.
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "25ms", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Detector: DetectorConfig{
			MinProfitPct:        0.01,
			MaxStalenessSeconds: 1.0,
			MinScanInterval:     duration{25 * time.Millisecond},
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "crossarb",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "crossarb-data",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:   notify.EventNames(),
			Cooldown: duration{30 * time.Second},
		},
		Status: StatusConfig{
			Interval: duration{10 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)

	// Mode
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, serve, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchanges — modes that run live feeds need at least one venue.
	// Individual entries are NOT validated here: a broken venue entry
	// halts only that venue (the supervisor logs and skips it), never
	// the process, as long as one venue remains runnable.
	runsFeeds := mode == "monitor" || mode == "full"
	if runsFeeds && len(c.Exchanges) == 0 {
		errs = append(errs, "exchanges: at least one venue must be configured for mode "+c.Mode)
	}

	// Detector
	if c.Detector.MinProfitPct < 0 {
		errs = append(errs, "detector: min_profit_pct must not be negative")
	}
	if c.Detector.MaxStalenessSeconds <= 0 {
		errs = append(errs, "detector: max_staleness_seconds must be > 0")
	}
	if c.Detector.MinScanInterval.Duration < 0 {
		errs = append(errs, "detector: min_scan_interval must not be negative")
	}

	// Redis — serve mode reads everything through Redis.
	if mode == "serve" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for serve mode")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration < 0 {
			errs = append(errs, "s3: archive_interval must not be negative")
		}
	}

	// Status
	if c.Status.Interval.Duration < 0 {
		errs = append(errs, "status: interval must not be negative")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}
	if mode == "serve" && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled for serve mode")
	}

	// Notify
	known := make(map[string]bool)
	for _, name := range notify.EventNames() {
		known[name] = true
	}
	for _, ev := range c.Notify.Events {
		if !known[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: %s)", ev, strings.Join(notify.EventNames(), ", ")))
		}
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MaxStaleness returns the scan staleness bound as a duration.
func (d DetectorConfig) MaxStaleness() time.Duration {
	return secondsToDuration(d.MaxStalenessSeconds)
}

// MaxStaleness returns the per-venue staleness override, or zero when
// the venue inherits the detector default.
func (e ExchangeConfig) MaxStaleness() time.Duration {
	return secondsToDuration(e.MaxStalenessSeconds)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
