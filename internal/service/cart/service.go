// Package cart реализует корзину покупателя.
package cart

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

// Service управляет корзинами.
type Service struct {
	runner *operation.Runner
	logger *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(runner *operation.Runner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{runner: runner, logger: logger}
}

// LockKey возвращает ключ блокировки корзины покупателя.
func LockKey(buyerID string) string {
	return "cart:" + buyerID
}

// AddToCart добавляет товар в корзину покупателя. Повторное добавление того же
// товара увеличивает количество в существующей позиции.
func (s *Service) AddToCart(ctx context.Context, callerID, productID string, quantity int) error {
	_, err := operation.Do(ctx, s.runner, "add_to_cart", func(ctx context.Context, uow *storage.UnitOfWork) (struct{}, error) {
		buyer, err := accounts.ResolveBuyer(ctx, uow, callerID)
		if err != nil {
			return struct{}{}, err
		}
		if quantity <= 0 {
			return struct{}{}, domain.ErrQuantityInvalid
		}
		if _, found, err := storage.GetRepository(uow, tables.Products).GetByID(ctx, productID); err != nil {
			return struct{}{}, err
		} else if !found {
			return struct{}{}, domain.ErrProductNotFound
		}

		// Чтение корзины и запись идут под блокировкой покупателя до коммита.
		if err := uow.Lock(ctx, LockKey(buyer.ID)); err != nil {
			return struct{}{}, err
		}

		now := s.runner.Now()
		cart, created, err := s.loadOrCreate(ctx, uow, buyer.ID)
		if err != nil {
			return struct{}{}, err
		}

		items := storage.GetRepository(uow, tables.CartItems)
		item, exists := cart.ItemFor(productID)
		if exists {
			item.Quantity += quantity
			item.UpdatedAt = now
			err = items.Update(*item)
		} else {
			item = &domain.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			err = items.Add(item)
			cart.Items = append(cart.Items, *item)
		}
		if err != nil {
			return struct{}{}, err
		}

		if !created {
			cart.UpdatedAt = now
			if err := storage.GetRepository(uow, tables.Carts).Update(cart); err != nil {
				return struct{}{}, err
			}
		}
		if err := s.runner.Emit(uow, outbox.Event{
			AggregateType: "cart",
			AggregateID:   cart.ID,
			EventType:     domain.EventCartItemAdded,
			Payload: map[string]any{
				"cart_id":       cart.ID,
				"buyer_id":      buyer.ID,
				"product_id":    productID,
				"added":         quantity,
				"quantity":      item.Quantity,
				"cart_quantity": cart.TotalQuantity(),
			},
		}); err != nil {
			return struct{}{}, err
		}

		s.logger.WithFields(log.Fields{
			"buyer_id":   buyer.ID,
			"product_id": productID,
			"quantity":   item.Quantity,
		}).Info("cart item added")
		return struct{}{}, nil
	})
	return err
}

// GetCart возвращает корзину покупателя с позициями; если корзины нет, возвращается пустая.
func (s *Service) GetCart(ctx context.Context, callerID string) (domain.Cart, error) {
	return operation.Query(ctx, s.runner, "get_cart", func(ctx context.Context, uow *storage.UnitOfWork) (domain.Cart, error) {
		buyer, err := accounts.ResolveBuyer(ctx, uow, callerID)
		if err != nil {
			return domain.Cart{}, err
		}
		cart, found, err := storage.GetRepository(uow, tables.Carts).
			GetSingleBy(ctx, storage.Eq("buyer_id", buyer.ID), tables.RelItems)
		if err != nil {
			return domain.Cart{}, err
		}
		if !found {
			return domain.Cart{BuyerID: buyer.ID, Items: []domain.CartItem{}}, nil
		}
		return cart, nil
	})
}

// loadOrCreate возвращает корзину покупателя с позициями; created=true, если корзина только что создана.
func (s *Service) loadOrCreate(ctx context.Context, uow *storage.UnitOfWork, buyerID string) (cart domain.Cart, created bool, err error) {
	carts := storage.GetRepository(uow, tables.Carts)
	cart, found, err := carts.GetSingleBy(ctx, storage.Eq("buyer_id", buyerID), tables.RelItems)
	if err != nil {
		return domain.Cart{}, false, err
	}
	if found {
		return cart, false, nil
	}

	now := s.runner.Now()
	cart = domain.Cart{BuyerID: buyerID, CreatedAt: now, UpdatedAt: now}
	if err := carts.Add(&cart); err != nil {
		return domain.Cart{}, false, err
	}
	s.logger.WithFields(log.Fields{"buyer_id": buyerID, "cart_id": cart.ID}).Debug("cart created")
	return cart, true, nil
}
