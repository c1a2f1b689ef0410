package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/rrijal1/poly-trader/internal/blob/s3"
	cachemem "github.com/rrijal1/poly-trader/internal/cache/memory"
	"github.com/rrijal1/poly-trader/internal/cache/redis"
	"github.com/rrijal1/poly-trader/internal/config"
	"github.com/rrijal1/poly-trader/internal/discovery"
	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/execution"
	"github.com/rrijal1/poly-trader/internal/notify"
	"github.com/rrijal1/poly-trader/internal/scheduler"
	"github.com/rrijal1/poly-trader/internal/store"
	"github.com/rrijal1/poly-trader/internal/store/memory"
	"github.com/rrijal1/poly-trader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the engine and its
// supporting loops need. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// QuoteCache is where the feeds write; MarketData is where the
	// strategies read. Both views are backed by the same cache.
	QuoteCache domain.QuoteCache
	MarketData domain.MarketData

	// Journal is the authoritative in-memory record, optionally teed into
	// Postgres. PoolStore is the optional durable pool mirror.
	Journal   domain.Journal
	PoolStore domain.PoolStore

	// EventBus and LockManager are nil when Redis is disabled.
	EventBus    domain.EventBus
	LockManager domain.LockManager

	Execution domain.Execution
	Discovery domain.Discovery

	Notifier *notify.Notifier
	Archiver *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock scheduler.Clock) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Journal: the in-memory ring is always the source of truth ---
	ring := memory.NewJournal(memory.DefaultCapacity)
	deps.Journal = ring

	// --- PostgreSQL (optional durable mirrors) ---
	if cfg.Postgres.Enabled {
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

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}

		pool := pgClient.Pool()
		deps.Journal = store.NewTeeJournal(ring, postgres.NewJournalStore(pool), logger)
		deps.PoolStore = postgres.NewPoolStore(pool)
	}

	// --- Redis (optional shared cache, bus, and lock) ---
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

		qc := redis.NewQuoteCache(redisClient)
		deps.QuoteCache = qc
		deps.MarketData = qc
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	} else {
		qc := cachemem.NewQuoteCache()
		deps.QuoteCache = qc
		deps.MarketData = qc
	}

	// --- S3 journal archives (optional) ---
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Journal,
			cfg.Archive.Prefix,
			clock.Now(),
			logger,
		)
	}

	// --- Execution port ---
	if cfg.Mode == string(domain.ModeLive) {
		deps.Execution = execution.NewVenueClient(
			cfg.Venue.RestHost,
			cfg.Venue.ApiKey,
			cfg.Venue.ApiSecret,
			cfg.Venue.ApiPassphrase,
		)
	} else {
		deps.Execution = execution.NewSimulator(deps.MarketData, clock, logger)
	}

	// --- Counterparty discovery ---
	if cfg.Venue.DataHost != "" {
		deps.Discovery = discovery.NewClient(cfg.Venue.DataHost)
	}

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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
