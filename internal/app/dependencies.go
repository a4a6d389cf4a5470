package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/storage/memory"
	"github.com/dborovsky/grandnode/internal/storage/postgres"
	redisstore "github.com/dborovsky/grandnode/internal/storage/redis"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Customers   domain.CustomerRepository
	Returns     domain.ReturnRequestRepository
	GiftCards   domain.GiftCardRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository

	// Store заполнен только для PostgreSQL; nil для in-memory хранилища.
	Store *postgres.Store
	// RedisClient и GiftCardCache заполнены, если настроен Redis.
	RedisClient   *goredis.Client
	GiftCardCache *redisstore.GiftCardCache

	Logger *log.Entry
}

// NewDependencies собирает зависимости по конфигурации: выбирает
// хранилище, при необходимости применяет миграции и оборачивает
// репозиторий подарочных карт Redis-кешем.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Customers = postgres.NewCustomerRepository(store)
		deps.Returns = postgres.NewReturnRequestRepository(store)
		deps.GiftCards = postgres.NewGiftCardRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")
	case StorageDriverMemory, "":
		deps.Orders = memory.NewOrderRepository()
		deps.Customers = memory.NewCustomerRepository()
		deps.Returns = memory.NewReturnRequestRepository()
		deps.GiftCards = memory.NewGiftCardRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis is unavailable, gift card cache disabled")
		} else {
			cache := redisstore.NewGiftCardCache(deps.GiftCards, client, cfg.GiftCardCacheTTL)
			deps.RedisClient = client
			deps.GiftCardCache = cache
			deps.GiftCards = cache
			logger.WithField("addr", cfg.RedisAddr).Info("gift card cache enabled")
		}
	}

	return deps, nil
}

// Close освобождает подключения к внешним системам.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
