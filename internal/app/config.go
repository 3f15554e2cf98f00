package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

const (
	envGRPCAddr                    = "RETAIL_GRPC_ADDR"
	envMetricsAddr                 = "RETAIL_HTTP_ADDR"
	envStorageDriver               = "RETAIL_STORAGE_DRIVER"
	envPostgresDSN                 = "RETAIL_POSTGRES_DSN"
	envPostgresAutoMigrate         = "RETAIL_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers                = "RETAIL_KAFKA_BROKERS"
	envRedisAddr                   = "RETAIL_REDIS_ADDR"
	envJWTSecret                   = "RETAIL_JWT_SECRET"
	envJWTTTL                      = "RETAIL_JWT_TTL"
	envOutboxPollInterval          = "RETAIL_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "RETAIL_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "RETAIL_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "RETAIL_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "RETAIL_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "RETAIL_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "RETAIL_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envReservationSweepInterval    = "RETAIL_RESERVATION_SWEEP_INTERVAL"
	envReservationSweepBatchSize   = "RETAIL_RESERVATION_SWEEP_BATCH_SIZE"
	envNotifyTimeout               = "RETAIL_NOTIFY_TIMEOUT"
	envLogLevel                    = "RETAIL_LOG_LEVEL"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers string
	// RedisAddr включает хранение ключей идемпотентности в Redis.
	RedisAddr string

	JWTSecret string
	JWTTTL    time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending — размер очереди, после которого /healthz сообщает degraded. 0 отключает проверку.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ReservationSweepInterval  time.Duration
	ReservationSweepBatchSize int

	NotifyTimeout time.Duration
	LogLevel      string
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		JWTTTL:                      12 * time.Hour,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            200 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ReservationSweepInterval:    time.Minute,
		ReservationSweepBatchSize:   100,
		NotifyTimeout:               5 * time.Second,
		LogLevel:                    log.InfoLevel.String(),
	}
}

type envLookup func(key string) (string, bool)

// LoadConfigFromEnv читает переменные RETAIL_*. Некорректные значения не прерывают запуск:
// поле остаётся со значением по умолчанию, а ошибка возвращается в списке предупреждений.
func LoadConfigFromEnv() (Config, []error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup envLookup) (Config, []error) {
	cfg := DefaultConfig()
	var warnings []error

	readString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	readBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	readInt := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	readDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	readString(envGRPCAddr, &cfg.GRPCAddr)
	readString(envMetricsAddr, &cfg.MetricsAddr)
	readString(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	readString(envPostgresDSN, &cfg.PostgresDSN)
	readBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	readString(envKafkaBrokers, &cfg.KafkaBrokers)
	readString(envRedisAddr, &cfg.RedisAddr)
	readString(envJWTSecret, &cfg.JWTSecret)
	readDuration(envJWTTTL, &cfg.JWTTTL, positiveDuration, "must be > 0")

	readDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	readInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	readInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	readDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	readInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	readDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	readInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	readDuration(envReservationSweepInterval, &cfg.ReservationSweepInterval, positiveDuration, "must be > 0")
	readInt(envReservationSweepBatchSize, &cfg.ReservationSweepBatchSize, positive, "must be > 0")

	readDuration(envNotifyTimeout, &cfg.NotifyTimeout, positiveDuration, "must be > 0")

	if v, ok := lookup(envLogLevel); ok && strings.TrimSpace(v) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(v))
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", envLogLevel, err))
		} else {
			cfg.LogLevel = level.String()
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on", "y":
		return true, nil
	case "0", "false", "no", "off", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid int value %q: %s", raw, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid duration value %q: %s", raw, rule)
	}
	return value, nil
}
