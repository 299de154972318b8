package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/accounts"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/operation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/review"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// Backend открывает единицы работы и отвечает на Ping.
type Backend interface {
	storage.Factory
	health.Pinger
}

// runtimeDependencies хранит выбранное хранилище и функцию его закрытия.
type runtimeDependencies struct {
	backend Backend
	close   func()
}

// initRuntimeDependencies выбирает хранилище по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			backend: memory.NewStore(tables.All()...),
			close:   func() {},
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for %q storage driver", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			version, applied, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres migrations applied")
			}
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{backend: store, close: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}

// Services: доменные сервисы маркетплейса, открывающие единицы работы на общем хранилище.
type Services struct {
	Accounts *accounts.Service
	Catalog  *catalog.Service
	Cart     *cart.Service
	Orders   *orders.Service
	Reviews  *review.Service
	Outbox   *outbox.Store
}

// NewServices собирает сервисы над фабрикой единиц работы.
func NewServices(factory storage.Factory, m *metrics.OperationMetrics, timeout time.Duration, logger *log.Entry) *Services {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	runner := operation.NewRunner(factory,
		operation.WithMetrics(m),
		operation.WithTimeout(timeout),
		operation.WithLogger(logger.WithField("layer", "operation")),
	)
	return &Services{
		Accounts: accounts.NewService(runner, logger.WithField("layer", "accounts")),
		Catalog:  catalog.NewService(runner, logger.WithField("layer", "catalog")),
		Cart:     cart.NewService(runner, logger.WithField("layer", "cart")),
		Orders:   orders.NewService(runner, logger.WithField("layer", "orders")),
		Reviews:  review.NewService(runner, logger.WithField("layer", "review")),
		Outbox:   outbox.NewStore(factory),
	}
}
