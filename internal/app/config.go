package app

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// EnvPrefix: префикс переменных окружения (MARKETPLACE_GRPC_ADDR и т.д.).
const EnvPrefix = "MARKETPLACE"

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	OperationTimeout    time.Duration

	// KafkaBrokers: список брокеров через запятую; пустая строка отключает публикацию outbox.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		OperationTimeout:    5 * time.Second,
		KafkaTopic:          "marketplace.events",
		KafkaDLQTopic:       "marketplace.dlq",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadConfig читает MARKETPLACE_* переменные окружения поверх значений по умолчанию.
// v == nil означает новый экземпляр viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		GRPCAddr:            v.GetString("grpc_addr"),
		MetricsAddr:         v.GetString("metrics_addr"),
		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		PostgresDSN:         strings.TrimSpace(v.GetString("postgres_dsn")),
		PostgresAutoMigrate: v.GetBool("postgres_auto_migrate"),
		OperationTimeout:    v.GetDuration("operation_timeout"),
		KafkaBrokers:        v.GetString("kafka_brokers"),
		KafkaTopic:          v.GetString("kafka_topic"),
		KafkaDLQTopic:       v.GetString("kafka_dlq_topic"),
		OutboxPollInterval:  v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:     v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:   v.GetInt("outbox_max_attempts"),
		OutboxRetryDelay:    v.GetDuration("outbox_retry_delay"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("storage_driver", d.StorageDriver)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", d.PostgresAutoMigrate)
	v.SetDefault("operation_timeout", d.OperationTimeout)
	v.SetDefault("kafka_brokers", d.KafkaBrokers)
	v.SetDefault("kafka_topic", d.KafkaTopic)
	v.SetDefault("kafka_dlq_topic", d.KafkaDLQTopic)
	v.SetDefault("outbox_poll_interval", d.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", d.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", d.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", d.OutboxRetryDelay)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required for %q storage driver", StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation timeout must be >= 0")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be > 0")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (use text|json)", c.LogFormat)
	}
	return nil
}

// Brokers разбирает KafkaBrokers.
func (c Config) Brokers() []string {
	chunks := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// ConfigureLogger применяет уровень и формат логирования к стандартному logger logrus.
func ConfigureLogger(cfg Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
