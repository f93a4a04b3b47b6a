// Package config defines the top-level configuration for the market engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POOLMKT_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Market   MarketConfig   `toml:"market"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the resolution data source parameters.
type OracleConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// MarketConfig holds market engine parameters.
type MarketConfig struct {
	// LockTimeout bounds how long a bet or settlement waits on a contended
	// event row before failing with a retryable busy error.
	LockTimeout duration `toml:"lock_timeout"`

	// SettleInterval is the settlement scheduler's scan period.
	SettleInterval duration `toml:"settle_interval"`

	// SettleTimeout bounds one event's settlement attempt inside a scan.
	SettleTimeout duration `toml:"settle_timeout"`

	// SettleBatchSize caps how many expired events one scan picks up.
	SettleBatchSize int `toml:"settle_batch_size"`

	// MaxOracleAttempts caps consecutive indeterminate oracle answers before
	// an event is flagged for manual review.
	MaxOracleAttempts int `toml:"max_oracle_attempts"`

	// KlineIntervals lists the bucket sizes recorded per pool change,
	// e.g. ["1m", "5m", "1h"].
	KlineIntervals []duration `toml:"kline_intervals"`
}

// ArchiveConfig holds cold-storage export parameters.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Retention duration `toml:"retention"`
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey guards the admin routes. Empty disables auth.
	APIKey string `toml:"api_key"`

	// WriteRateLimit caps POST requests per client IP per WriteRateWindow;
	// zero disables rate limiting.
	WriteRateLimit  int      `toml:"write_rate_limit"`
	WriteRateWindow duration `toml:"write_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
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
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "poolmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{15 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "poolmarket-archive",
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			BaseURL: "http://localhost:8081",
			Timeout: duration{10 * time.Second},
		},
		Market: MarketConfig{
			LockTimeout:       duration{3 * time.Second},
			SettleInterval:    duration{time.Minute},
			SettleTimeout:     duration{30 * time.Second},
			SettleBatchSize:   100,
			MaxOracleAttempts: 10,
			KlineIntervals: []duration{
				{time.Minute},
				{5 * time.Minute},
				{time.Hour},
			},
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Retention: duration{30 * 24 * time.Hour},
			Interval:  duration{6 * time.Hour},
			BatchSize: 200,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			WriteRateLimit:  0,
			WriteRateWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"event_needs_review", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only when the archiver runs.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Oracle
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}

	// Market
	if c.Market.LockTimeout.Duration <= 0 {
		errs = append(errs, "market: lock_timeout must be > 0")
	}
	if c.Market.SettleInterval.Duration <= 0 {
		errs = append(errs, "market: settle_interval must be > 0")
	}
	if c.Market.SettleBatchSize < 1 {
		errs = append(errs, "market: settle_batch_size must be >= 1")
	}
	if c.Market.MaxOracleAttempts < 1 {
		errs = append(errs, "market: max_oracle_attempts must be >= 1")
	}
	if len(c.Market.KlineIntervals) == 0 {
		errs = append(errs, "market: kline_intervals must not be empty")
	}
	for _, iv := range c.Market.KlineIntervals {
		if iv.Duration < time.Second {
			errs = append(errs, fmt.Sprintf("market: kline interval %s is below 1s", iv.Duration))
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled = true")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.WriteRateLimit > 0 && c.Server.WriteRateWindow.Duration <= 0 {
		errs = append(errs, "server: write_rate_window must be > 0 when write_rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// KlineIntervals returns the configured bucket sizes as plain durations.
func (c *Config) KlineIntervals() []time.Duration {
	out := make([]time.Duration, 0, len(c.Market.KlineIntervals))
	for _, iv := range c.Market.KlineIntervals {
		out = append(out, iv.Duration)
	}
	return out
}
