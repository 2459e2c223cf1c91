// Package config defines the top-level configuration for the trading engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MOONBOT_* environment
// variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Store    StoreConfig    `toml:"store"`
	Oracle   OracleConfig   `toml:"oracle"`
	Dex      DexConfig      `toml:"dex"`
	Stream   StreamConfig   `toml:"stream"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds the asset, sizing, cadence, and threshold parameters.
type TradingConfig struct {
	// Enabled is the master switch: when false the schedulers do not start
	// and the monitor runs dry (observes prices, never sells).
	Enabled bool `toml:"enabled"`

	Asset      string `toml:"asset"`
	QuoteAsset string `toml:"quote_asset"`

	// BuyAmount is in quote currency. SellAmount is interpreted per
	// SellDenomination: "quote" converts at the live price, "units" sells a
	// fixed unit count.
	BuyAmount        float64 `toml:"buy_amount"`
	SellAmount       float64 `toml:"sell_amount"`
	SellDenomination string  `toml:"sell_denomination"`

	BuyInterval  duration `toml:"buy_interval"`
	SellInterval duration `toml:"sell_interval"`

	// TakeProfit and StopLoss are percentages relative to the entry price.
	TakeProfit float64 `toml:"take_profit"`
	StopLoss   float64 `toml:"stop_loss"`

	// MaxSellRetries bounds retries after the initial sell attempt;
	// exhaustion marks the position failed.
	MaxSellRetries int      `toml:"max_sell_retries"`
	SellRetryDelay duration `toml:"sell_retry_delay"`

	// PriceCheckDelay spaces assets within a monitor sweep; CycleDelay
	// spaces full sweeps.
	PriceCheckDelay duration `toml:"price_check_delay"`
	CycleDelay      duration `toml:"cycle_delay"`

	// LockTTL bounds distributed order locks held by a crashed process.
	LockTTL duration `toml:"lock_ttl"`
}

// StoreConfig selects and configures the position store backend.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend string `toml:"backend"`
	// Path is the JSON ledger location for the file backend.
	Path string `toml:"path"`
}

// OracleConfig holds the price oracle endpoint and retry schedule.
type OracleConfig struct {
	BaseURL    string   `toml:"base_url"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay duration `toml:"retry_delay"`
}

// DexConfig holds the execution API endpoint and order parameters.
type DexConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
	// Account is the trading account queried for balances.
	Account string `toml:"account"`
	// FeeHint is the priority fee passed through on each order, in the
	// venue's native fee unit.
	FeeHint     int64 `toml:"fee_hint"`
	SlippageBps int   `toml:"slippage_bps"`
}

// StreamConfig holds the optional WebSocket quote feed.
type StreamConfig struct {
	Enabled bool   `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
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

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled the engine uses in-process locks and no quote cache.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// S3Config holds the optional closed-position archive target.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Prefix          string   `toml:"prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
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

// Defaults returns a Config populated with reasonable default values. These
// match config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Enabled:          true,
			QuoteAsset:       "USDC",
			BuyAmount:        0.1,
			SellAmount:       0.1,
			SellDenomination: "quote",
			BuyInterval:      duration{60 * time.Second},
			SellInterval:     duration{90 * time.Second},
			TakeProfit:       10,
			StopLoss:         10,
			MaxSellRetries:   3,
			SellRetryDelay:   duration{2 * time.Second},
			PriceCheckDelay:  duration{5 * time.Second},
			CycleDelay:       duration{10 * time.Second},
			LockTTL:          duration{time.Minute},
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "positions.json",
		},
		Oracle: OracleConfig{
			Timeout:    duration{15 * time.Second},
			MaxRetries: 3,
			RetryDelay: duration{2 * time.Second},
		},
		Dex: DexConfig{
			Timeout:     duration{15 * time.Second},
			FeeHint:     100_000,
			SlippageBps: 100,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "moonbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			QuoteTTL:   duration{time.Minute},
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "moonbot-data",
			ForcePathStyle:  true,
			Prefix:          "archive",
			ArchiveInterval: duration{time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "sell_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"full":    true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.Asset == "" {
		errs = append(errs, "trading: asset must not be empty")
	}
	if c.Trading.BuyAmount <= 0 {
		errs = append(errs, "trading: buy_amount must be > 0")
	}
	if c.Trading.SellAmount <= 0 {
		errs = append(errs, "trading: sell_amount must be > 0")
	}
	switch c.Trading.SellDenomination {
	case "quote", "units":
	default:
		errs = append(errs, fmt.Sprintf("trading: sell_denomination must be \"quote\" or \"units\", got %q", c.Trading.SellDenomination))
	}
	if c.Trading.TakeProfit <= 0 {
		errs = append(errs, "trading: take_profit must be > 0")
	}
	if c.Trading.StopLoss <= 0 || c.Trading.StopLoss >= 100 {
		errs = append(errs, "trading: stop_loss must be in (0, 100)")
	}
	if c.Trading.MaxSellRetries < 0 {
		errs = append(errs, "trading: max_sell_retries must be >= 0")
	}

	// Store
	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			errs = append(errs, "store: path must not be empty for the file backend")
		}
	case "postgres":
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: backend must be \"file\" or \"postgres\", got %q", c.Store.Backend))
	}

	// Oracle / Dex
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.MaxRetries < 1 {
		errs = append(errs, "oracle: max_retries must be >= 1")
	}
	if c.Dex.BaseURL == "" {
		errs = append(errs, "dex: base_url must not be empty")
	}
	if c.Dex.SlippageBps < 0 {
		errs = append(errs, "dex: slippage_bps must be >= 0")
	}

	// Stream
	if c.Stream.Enabled && c.Stream.WsURL == "" {
		errs = append(errs, "stream: ws_url must not be empty when enabled")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
