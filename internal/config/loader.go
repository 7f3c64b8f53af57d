package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Venue definitions have no env form; they live in the TOML
// [[exchanges]] tables only.
func applyEnvOverrides(cfg *Config) {
	// ── Detector ──
	setFloat64(&cfg.Detector.MinProfitPct, "CROSSARB_DETECTOR_MIN_PROFIT_PCT")
	setFloat64(&cfg.Detector.MaxStalenessSeconds, "CROSSARB_DETECTOR_MAX_STALENESS_SECONDS")
	setDuration(&cfg.Detector.MinScanInterval, "CROSSARB_DETECTOR_MIN_SCAN_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CROSSARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "CROSSARB_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CROSSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CROSSARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "CROSSARB_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "CROSSARB_NOTIFY_COOLDOWN")

	// ── Status ──
	setDuration(&cfg.Status.Interval, "CROSSARB_STATUS_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
