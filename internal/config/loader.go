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
// built-in defaults, applies MOONBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOONBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setBool(&cfg.Trading.Enabled, "MOONBOT_TRADING_ENABLED")
	setStr(&cfg.Trading.Asset, "MOONBOT_TRADING_ASSET")
	setStr(&cfg.Trading.QuoteAsset, "MOONBOT_TRADING_QUOTE_ASSET")
	setFloat64(&cfg.Trading.BuyAmount, "MOONBOT_TRADING_BUY_AMOUNT")
	setFloat64(&cfg.Trading.SellAmount, "MOONBOT_TRADING_SELL_AMOUNT")
	setStr(&cfg.Trading.SellDenomination, "MOONBOT_TRADING_SELL_DENOMINATION")
	setDuration(&cfg.Trading.BuyInterval, "MOONBOT_TRADING_BUY_INTERVAL")
	setDuration(&cfg.Trading.SellInterval, "MOONBOT_TRADING_SELL_INTERVAL")
	setFloat64(&cfg.Trading.TakeProfit, "MOONBOT_TRADING_TAKE_PROFIT")
	setFloat64(&cfg.Trading.StopLoss, "MOONBOT_TRADING_STOP_LOSS")
	setInt(&cfg.Trading.MaxSellRetries, "MOONBOT_TRADING_MAX_SELL_RETRIES")
	setDuration(&cfg.Trading.SellRetryDelay, "MOONBOT_TRADING_SELL_RETRY_DELAY")
	setDuration(&cfg.Trading.PriceCheckDelay, "MOONBOT_TRADING_PRICE_CHECK_DELAY")
	setDuration(&cfg.Trading.CycleDelay, "MOONBOT_TRADING_CYCLE_DELAY")
	setDuration(&cfg.Trading.LockTTL, "MOONBOT_TRADING_LOCK_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "MOONBOT_STORE_BACKEND")
	setStr(&cfg.Store.Path, "MOONBOT_STORE_PATH")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "MOONBOT_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.Timeout, "MOONBOT_ORACLE_TIMEOUT")
	setInt(&cfg.Oracle.MaxRetries, "MOONBOT_ORACLE_MAX_RETRIES")
	setDuration(&cfg.Oracle.RetryDelay, "MOONBOT_ORACLE_RETRY_DELAY")

	// ── Dex ──
	setStr(&cfg.Dex.BaseURL, "MOONBOT_DEX_BASE_URL")
	setDuration(&cfg.Dex.Timeout, "MOONBOT_DEX_TIMEOUT")
	setStr(&cfg.Dex.Account, "MOONBOT_DEX_ACCOUNT")
	setInt64(&cfg.Dex.FeeHint, "MOONBOT_DEX_FEE_HINT")
	setInt(&cfg.Dex.SlippageBps, "MOONBOT_DEX_SLIPPAGE_BPS")

	// ── Stream ──
	setBool(&cfg.Stream.Enabled, "MOONBOT_STREAM_ENABLED")
	setStr(&cfg.Stream.WsURL, "MOONBOT_STREAM_WS_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MOONBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOONBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOONBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOONBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOONBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOONBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOONBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOONBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOONBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOONBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MOONBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MOONBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOONBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOONBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOONBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOONBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOONBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "MOONBOT_REDIS_QUOTE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MOONBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MOONBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOONBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOONBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MOONBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOONBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOONBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOONBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MOONBOT_S3_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "MOONBOT_S3_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MOONBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MOONBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MOONBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MOONBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MOONBOT_MODE")
	setStr(&cfg.LogLevel, "MOONBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
