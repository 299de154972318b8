// Package servicetest содержит общие фикстуры для тестов доменных сервисов.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/operation"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// Fixed: время, которое возвращают часы фикстуры.
var Fixed = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

// Env объединяет хранилище в памяти и Runner поверх него.
type Env struct {
	Store   *memory.Store
	Runner  *operation.Runner
	Metrics *metrics.OperationMetrics
}

// New создаёт изолированное окружение с собственным registry метрик.
func New(t testing.TB) *Env {
	t.Helper()
	store := memory.NewStore(tables.All()...)
	m := metrics.NewOperationMetricsWithRegisterer(prometheus.NewRegistry())
	return &Env{
		Store:   store,
		Metrics: m,
		Runner: operation.NewRunner(store,
			operation.WithMetrics(m),
			operation.WithClock(func() time.Time { return Fixed }),
			operation.WithLogger(Logger()),
		),
	}
}

// Logger возвращает logger, который ничего не печатает.
func Logger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

// Seed выполняет fn в отдельной единице работы и коммитит её.
func (e *Env) Seed(t testing.TB, fn func(uow *storage.UnitOfWork)) {
	t.Helper()
	ctx := context.Background()
	uow, err := e.Store.Begin(ctx)
	require.NoError(t, err)
	fn(uow)
	require.NoError(t, uow.Commit(ctx))
}

// Seller регистрирует продавца напрямую через хранилище.
func (e *Env) Seller(t testing.TB, userID string) domain.Seller {
	t.Helper()
	seller := domain.Seller{UserID: userID, FirstName: userID, BusinessName: userID + " shop", CreatedAt: Fixed}
	e.Seed(t, func(uow *storage.UnitOfWork) {
		require.NoError(t, storage.GetRepository(uow, tables.Sellers).Add(&seller))
	})
	return seller
}

// Buyer регистрирует покупателя.
func (e *Env) Buyer(t testing.TB, userID string) domain.Buyer {
	t.Helper()
	buyer := domain.Buyer{UserID: userID, FirstName: userID, CreatedAt: Fixed}
	e.Seed(t, func(uow *storage.UnitOfWork) {
		require.NoError(t, storage.GetRepository(uow, tables.Buyers).Add(&buyer))
	})
	return buyer
}

// Product создаёт товар продавца.
func (e *Env) Product(t testing.TB, seller domain.Seller, name, price string) domain.Product {
	t.Helper()
	product := domain.Product{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		SellerID:  seller.ID,
		CreatedAt: Fixed,
		UpdatedAt: Fixed,
	}
	e.Seed(t, func(uow *storage.UnitOfWork) {
		require.NoError(t, storage.GetRepository(uow, tables.Products).Add(&product))
	})
	return product
}

// CompletedOrder записывает завершённый заказ покупателя на указанные товары.
func (e *Env) CompletedOrder(t testing.TB, buyer domain.Buyer, products ...domain.Product) domain.Order {
	t.Helper()
	order := domain.Order{BuyerID: buyer.ID, Status: domain.OrderStatusCompleted, CreatedAt: Fixed}
	e.Seed(t, func(uow *storage.UnitOfWork) {
		require.NoError(t, storage.GetRepository(uow, tables.Orders).Add(&order))
		items := storage.GetRepository(uow, tables.OrderItems)
		for _, p := range products {
			item := domain.OrderItem{OrderID: order.ID, ProductID: p.ID, Quantity: 1, UnitPrice: p.Price}
			require.NoError(t, items.Add(&item))
			order.Items = append(order.Items, item)
		}
	})
	return order
}

// All читает всю таблицу в новой единице работы.
func All[T any](t testing.TB, e *Env, schema *storage.Schema[T], includes ...string) []T {
	t.Helper()
	ctx := context.Background()
	uow, err := e.Store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	rows, err := storage.GetRepository(uow, schema).GetAllBy(ctx, nil, includes...)
	require.NoError(t, err)
	return rows
}
