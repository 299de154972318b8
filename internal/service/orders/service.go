// Package orders фиксирует покупки. Покупки открывают покупателю возможность оставить отзыв.
package orders

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/accounts"
	"github.com/vladislavdragonenkov/marketplace/internal/service/operation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// Line описывает позицию покупки.
type Line struct {
	ProductID string
	Quantity  int
}

// Service работает с историей заказов.
type Service struct {
	runner *operation.Runner
	logger *log.Entry
}

// NewService создаёт сервис заказов.
func NewService(runner *operation.Runner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{runner: runner, logger: logger}
}

// RecordPurchase создаёт завершённый заказ покупателя. Цена позиции фиксируется на момент покупки.
func (s *Service) RecordPurchase(ctx context.Context, callerID string, lines []Line) (string, error) {
	return operation.Do(ctx, s.runner, "record_purchase", func(ctx context.Context, uow *storage.UnitOfWork) (string, error) {
		buyer, err := accounts.ResolveBuyer(ctx, uow, callerID)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			return "", domain.ErrItemsRequired
		}

		ids := make([]string, 0, len(lines))
		for _, line := range lines {
			if line.Quantity <= 0 {
				return "", domain.ErrQuantityInvalid
			}
			ids = append(ids, line.ProductID)
		}
		products, err := storage.GetRepository(uow, tables.Products).GetAllBy(ctx, storage.In("id", ids))
		if err != nil {
			return "", err
		}
		prices := make(map[string]domain.Product, len(products))
		for _, p := range products {
			prices[p.ID] = p
		}

		order := domain.Order{
			BuyerID:   buyer.ID,
			Status:    domain.OrderStatusCompleted,
			CreatedAt: s.runner.Now(),
		}
		if err := storage.GetRepository(uow, tables.Orders).Add(&order); err != nil {
			return "", err
		}
		items := storage.GetRepository(uow, tables.OrderItems)
		for _, line := range lines {
			product, ok := prices[line.ProductID]
			if !ok {
				return "", domain.Errorf(domain.KindNotFound, "product %s not found", line.ProductID)
			}
			item := domain.OrderItem{
				OrderID:   order.ID,
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			}
			if err := items.Add(&item); err != nil {
				return "", err
			}
			order.Items = append(order.Items, item)
		}

		if err := s.runner.Emit(uow, outbox.Event{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     domain.EventOrderRecorded,
			Payload: map[string]any{
				"order_id": order.ID,
				"buyer_id": buyer.ID,
				"items":    len(order.Items),
				"total":    order.Total().String(),
			},
		}); err != nil {
			return "", err
		}

		s.logger.WithFields(log.Fields{"order_id": order.ID, "buyer_id": buyer.ID}).Info("purchase recorded")
		return order.ID, nil
	})
}

// ListOrders возвращает заказы покупателя вместе с позициями.
func (s *Service) ListOrders(ctx context.Context, callerID string) ([]domain.Order, error) {
	return operation.Query(ctx, s.runner, "list_orders", func(ctx context.Context, uow *storage.UnitOfWork) ([]domain.Order, error) {
		buyer, err := accounts.ResolveBuyer(ctx, uow, callerID)
		if err != nil {
			return nil, err
		}
		return storage.GetRepository(uow, tables.Orders).GetAllBy(ctx, storage.Eq("buyer_id", buyer.ID), tables.RelItems)
	})
}
