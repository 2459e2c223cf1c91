package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/moonbotlabs/moonbot/internal/blob/s3"
	"github.com/moonbotlabs/moonbot/internal/cache/redis"
	"github.com/moonbotlabs/moonbot/internal/config"
	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/executor"
	"github.com/moonbotlabs/moonbot/internal/lock"
	"github.com/moonbotlabs/moonbot/internal/monitor"
	"github.com/moonbotlabs/moonbot/internal/notify"
	"github.com/moonbotlabs/moonbot/internal/platform/primedex"
	"github.com/moonbotlabs/moonbot/internal/scheduler"
	"github.com/moonbotlabs/moonbot/internal/store/file"
	"github.com/moonbotlabs/moonbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store      domain.PositionStore
	Locks      domain.LockManager
	QuoteCache domain.PriceCache

	Oracle  *primedex.OracleClient
	Exec    *primedex.ExecClient
	Balance *primedex.BalanceClient
	Stream  *primedex.QuoteStream

	Notifier *notify.Notifier

	Executor  *executor.Executor
	Monitor   *monitor.Monitor
	Scheduler *scheduler.Scheduler
	Archiver  *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Position store ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewLedger(pgClient.Pool())

	default: // "file", enforced by Validate
		deps.Store = file.Open(cfg.Store.Path, logger)
	}

	// --- Locks and quote cache: Redis when enabled, in-process otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
	} else {
		deps.Locks = lock.NewKeyed()
	}

	// --- Exchange clients ---
	deps.Oracle = primedex.NewOracleClient(primedex.OracleClientConfig{
		BaseURL:    cfg.Oracle.BaseURL,
		Timeout:    cfg.Oracle.Timeout.Duration,
		MaxRetries: cfg.Oracle.MaxRetries,
		RetryDelay: cfg.Oracle.RetryDelay.Duration,
	}, logger)
	deps.Exec = primedex.NewExecClient(primedex.ExecClientConfig{
		BaseURL:     cfg.Dex.BaseURL,
		FeeHint:     cfg.Dex.FeeHint,
		SlippageBps: cfg.Dex.SlippageBps,
		Timeout:     cfg.Dex.Timeout.Duration,
	})
	deps.Balance = primedex.NewBalanceClient(primedex.BalanceClientConfig{
		BaseURL: cfg.Dex.BaseURL,
		Account: cfg.Dex.Account,
		Timeout: cfg.Dex.Timeout.Duration,
	})

	// --- Optional streaming quote feed, warming the cache ---
	if cfg.Stream.Enabled && deps.QuoteCache != nil {
		cache := deps.QuoteCache
		deps.Stream = primedex.NewQuoteStream(
			cfg.Stream.WsURL,
			[]string{cfg.Trading.Asset},
			func(ctx context.Context, asset string, price float64, ts time.Time) {
				if err := cache.SetPrice(ctx, asset, price, ts); err != nil {
					logger.Debug("stream cache write failed",
						slog.String("asset", asset),
						slog.String("error", err.Error()),
					)
				}
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Engine ---
	deps.Executor = executor.New(
		deps.Store, deps.Exec, deps.Oracle, deps.QuoteCache, deps.Locks, deps.Notifier,
		executor.Config{
			MaxSellRetries: cfg.Trading.MaxSellRetries,
			SellRetryDelay: cfg.Trading.SellRetryDelay.Duration,
			LockTTL:        cfg.Trading.LockTTL.Duration,
		},
		logger,
	)
	deps.Monitor = monitor.New(
		deps.Store, deps.Oracle, deps.Executor, deps.QuoteCache,
		monitor.Config{
			TakeProfitPct: cfg.Trading.TakeProfit,
			StopLossPct:   cfg.Trading.StopLoss,
			PollDelay:     cfg.Trading.PriceCheckDelay.Duration,
			CycleDelay:    cfg.Trading.CycleDelay.Duration,
			Execute:       cfg.Trading.Enabled,
		},
		logger,
	)
	deps.Scheduler = scheduler.New(
		deps.Executor, deps.Balance,
		scheduler.Config{
			Asset:            cfg.Trading.Asset,
			QuoteAsset:       cfg.Trading.QuoteAsset,
			BuyAmount:        cfg.Trading.BuyAmount,
			SellAmount:       cfg.Trading.SellAmount,
			SellDenomination: domain.Denomination(cfg.Trading.SellDenomination),
			BuyInterval:      cfg.Trading.BuyInterval.Duration,
			SellInterval:     cfg.Trading.SellInterval.Duration,
		},
		logger,
	)

	// --- Optional closed-position archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			deps.Store, s3blob.NewWriter(s3Client),
			cfg.S3.ArchiveInterval.Duration, cfg.S3.Prefix, logger,
		)
	}

	return deps, cleanup, nil
}
