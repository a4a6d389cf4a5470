package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	// StorageDriverMemory — in-memory хранилище для разработки и тестов.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL.
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает кеширование подарочных карт; пустое значение
	// отключает кеш целиком.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	GiftCardCacheTTL time.Duration

	// KafkaBrokers включает публикацию событий через outbox;
	// пустое значение оставляет события в таблице outbox.
	KafkaBrokers       string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	Settings domain.ReturnSettings
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		GiftCardCacheTTL: 5 * time.Minute,

		KafkaConsumerGroup: "grandnode-returns",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    20,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   200 * time.Millisecond,

		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		Settings: domain.DefaultReturnSettings(),
	}
}

// ConfigFromEnv собирает конфигурацию из окружения поверх значений
// по умолчанию. Непустой GRANDNODE_POSTGRES_DSN переключает хранилище
// на PostgreSQL без отдельного флага.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("GRANDNODE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("GRANDNODE_METRICS_ADDR", cfg.MetricsAddr)

	cfg.PostgresDSN = envString("GRANDNODE_POSTGRES_DSN", cfg.PostgresDSN)
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	cfg.PostgresAutoMigrate = envBool("GRANDNODE_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.RedisAddr = envString("GRANDNODE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("GRANDNODE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("GRANDNODE_REDIS_DB", cfg.RedisDB)
	cfg.GiftCardCacheTTL = envDuration("GRANDNODE_GIFTCARD_CACHE_TTL", cfg.GiftCardCacheTTL)

	cfg.KafkaBrokers = envString("GRANDNODE_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envString("GRANDNODE_KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)

	cfg.OutboxPollInterval = envDuration("GRANDNODE_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("GRANDNODE_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("GRANDNODE_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("GRANDNODE_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.IdempotencyCleanupInterval = envDuration("GRANDNODE_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = envInt("GRANDNODE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize)

	cfg.Settings.ReturnsEnabled = envBool("GRANDNODE_RETURNS_ENABLED", cfg.Settings.ReturnsEnabled)
	cfg.Settings.ReturnPeriodDays = envInt("GRANDNODE_RETURN_PERIOD_DAYS", cfg.Settings.ReturnPeriodDays)
	cfg.Settings.AllowSpecifyPickupAddress = envBool("GRANDNODE_ALLOW_PICKUP_ADDRESS", cfg.Settings.AllowSpecifyPickupAddress)
	cfg.Settings.AllowSpecifyPickupDate = envBool("GRANDNODE_ALLOW_PICKUP_DATE", cfg.Settings.AllowSpecifyPickupDate)
	cfg.Settings.PickupDateRequired = envBool("GRANDNODE_PICKUP_DATE_REQUIRED", cfg.Settings.PickupDateRequired)

	return cfg
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
