package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/oddsmith/poolmarket/internal/blob/s3"
	"github.com/oddsmith/poolmarket/internal/cache/redis"
	"github.com/oddsmith/poolmarket/internal/config"
	"github.com/oddsmith/poolmarket/internal/kline"
	"github.com/oddsmith/poolmarket/internal/market"
	"github.com/oddsmith/poolmarket/internal/notify"
	"github.com/oddsmith/poolmarket/internal/oracle"
	"github.com/oddsmith/poolmarket/internal/server"
	"github.com/oddsmith/poolmarket/internal/server/handler"
	"github.com/oddsmith/poolmarket/internal/server/ws"
	"github.com/oddsmith/poolmarket/internal/settle"
	"github.com/oddsmith/poolmarket/internal/store/postgres"
)

// Dependencies bundles every long-lived component the application runs. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Server    *server.Server
	Hub       *ws.Hub
	Scheduler *settle.Scheduler
	Archiver  *settle.Archiver // nil unless archiving is enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- PostgreSQL ---
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

	pool := pgClient.Pool()
	store := postgres.NewStore(pool, cfg.Market.LockTimeout.Duration)
	samples := postgres.NewSampleStore(pool)

	// --- Redis ---
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

	bus := redis.NewSignalBus(redisClient)
	prices := redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	limiter := redis.NewRateLimiter(redisClient)

	// --- Oracle ---
	oracleClient := oracle.New(cfg.Oracle.BaseURL, cfg.Oracle.Timeout.Duration, prices, logger)

	// --- Core services ---
	recorder := kline.NewRecorder(samples, cfg.KlineIntervals(), logger)
	publisher := ws.NewPublisher(bus, logger)
	hub := ws.NewHub(bus, logger)

	svc := market.NewService(store, recorder, oracleClient, oracleClient, publisher,
		market.Config{MaxOracleAttempts: cfg.Market.MaxOracleAttempts}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Background jobs ---
	scheduler := settle.NewScheduler(store, svc, notifier, settle.SchedulerConfig{
		Interval:        cfg.Market.SettleInterval.Duration,
		PerEventTimeout: cfg.Market.SettleTimeout.Duration,
		BatchSize:       cfg.Market.SettleBatchSize,
	}, logger)

	var archiver *settle.Archiver
	if cfg.Archive.Enabled {
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
		archiver = settle.NewArchiver(store, samples, s3blob.NewWriter(s3Client), settle.ArchiverConfig{
			Retention: cfg.Archive.Retention.Duration,
			Interval:  cfg.Archive.Interval.Duration,
			BatchSize: cfg.Archive.BatchSize,
			Intervals: cfg.KlineIntervals(),
		}, logger)
	}

	// --- HTTP server ---
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(logger),
		Events:   handler.NewEventHandler(svc, logger),
		Bets:     handler.NewBetHandler(svc, logger),
		Klines:   handler.NewKlineHandler(svc, logger),
		Balances: handler.NewBalanceHandler(svc, logger),
	}
	srv := server.NewServer(server.Config{
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		APIKey:          cfg.Server.APIKey,
		WriteRateLimit:  cfg.Server.WriteRateLimit,
		WriteRateWindow: cfg.Server.WriteRateWindow.Duration,
	}, handlers, hub, limiter, logger)

	return &Dependencies{
		Server:    srv,
		Hub:       hub,
		Scheduler: scheduler,
		Archiver:  archiver,
	}, cleanup, nil
}
