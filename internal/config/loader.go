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
// built-in defaults, applies POOLMKT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POOLMKT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POOLMKT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POOLMKT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POOLMKT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POOLMKT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POOLMKT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POOLMKT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POOLMKT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POOLMKT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POOLMKT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POOLMKT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POOLMKT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLMKT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLMKT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLMKT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLMKT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLMKT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "POOLMKT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POOLMKT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POOLMKT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLMKT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLMKT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLMKT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLMKT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLMKT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLMKT_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "POOLMKT_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.Timeout, "POOLMKT_ORACLE_TIMEOUT")

	// ── Market ──
	setDuration(&cfg.Market.LockTimeout, "POOLMKT_MARKET_LOCK_TIMEOUT")
	setDuration(&cfg.Market.SettleInterval, "POOLMKT_MARKET_SETTLE_INTERVAL")
	setDuration(&cfg.Market.SettleTimeout, "POOLMKT_MARKET_SETTLE_TIMEOUT")
	setInt(&cfg.Market.SettleBatchSize, "POOLMKT_MARKET_SETTLE_BATCH_SIZE")
	setInt(&cfg.Market.MaxOracleAttempts, "POOLMKT_MARKET_MAX_ORACLE_ATTEMPTS")
	setDurationSlice(&cfg.Market.KlineIntervals, "POOLMKT_MARKET_KLINE_INTERVALS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POOLMKT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Retention, "POOLMKT_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "POOLMKT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "POOLMKT_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setInt(&cfg.Server.Port, "POOLMKT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLMKT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POOLMKT_SERVER_API_KEY")
	setInt(&cfg.Server.WriteRateLimit, "POOLMKT_SERVER_WRITE_RATE_LIMIT")
	setDuration(&cfg.Server.WriteRateWindow, "POOLMKT_SERVER_WRITE_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POOLMKT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLMKT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLMKT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLMKT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POOLMKT_LOG_LEVEL")
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

func setDurationSlice(dst *[]duration, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		parsed := make([]duration, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			d, err := time.ParseDuration(p)
			if err != nil {
				return
			}
			parsed = append(parsed, duration{d})
		}
		if len(parsed) > 0 {
			*dst = parsed
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
