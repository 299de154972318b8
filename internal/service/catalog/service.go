// Package catalog управляет товарами продавцов.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/accounts"
	"github.com/vladislavdragonenkov/marketplace/internal/service/operation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// ProductInput: данные товара от продавца.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

// Service реализует операции каталога.
type Service struct {
	runner *operation.Runner
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(runner *operation.Runner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{runner: runner, logger: logger}
}

// CreateProduct создаёт товар от имени продавца и возвращает его идентификатор.
func (s *Service) CreateProduct(ctx context.Context, callerID string, input ProductInput) (string, error) {
	return operation.Do(ctx, s.runner, "create_product", func(ctx context.Context, uow *storage.UnitOfWork) (string, error) {
		seller, err := accounts.ResolveSeller(ctx, uow, callerID)
		if err != nil {
			return "", err
		}

		now := s.runner.Now()
		product := domain.Product{
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			SellerID:    seller.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := product.Validate(); err != nil {
			return "", err
		}
		if err := storage.GetRepository(uow, tables.Products).Add(&product); err != nil {
			return "", err
		}
		if err := s.emit(uow, domain.EventProductCreated, product); err != nil {
			return "", err
		}

		s.logger.WithFields(log.Fields{"product_id": product.ID, "seller_id": seller.ID}).Info("product created")
		return product.ID, nil
	})
}

// UpdateProduct переписывает поля товара. Менять товар может только его владелец.
func (s *Service) UpdateProduct(ctx context.Context, callerID, productID string, input ProductInput) error {
	_, err := operation.Do(ctx, s.runner, "update_product", func(ctx context.Context, uow *storage.UnitOfWork) (struct{}, error) {
		product, err := s.loadOwned(ctx, uow, callerID, productID)
		if err != nil {
			return struct{}{}, err
		}

		product.Name = input.Name
		product.Description = input.Description
		product.Price = input.Price
		product.UpdatedAt = s.runner.Now()
		if err := product.Validate(); err != nil {
			return struct{}{}, err
		}
		if err := storage.GetRepository(uow, tables.Products).Update(product); err != nil {
			return struct{}{}, err
		}
		if err := s.emit(uow, domain.EventProductUpdated, product); err != nil {
			return struct{}{}, err
		}

		s.logger.WithFields(log.Fields{"product_id": product.ID, "seller_id": product.SellerID}).Info("product updated")
		return struct{}{}, nil
	})
	return err
}

// DeleteProduct удаляет товар владельца вместе с отзывами и позициями корзин.
func (s *Service) DeleteProduct(ctx context.Context, callerID, productID string) error {
	_, err := operation.Do(ctx, s.runner, "delete_product", func(ctx context.Context, uow *storage.UnitOfWork) (struct{}, error) {
		product, err := s.loadOwned(ctx, uow, callerID, productID)
		if err != nil {
			return struct{}{}, err
		}
		if err := storage.GetRepository(uow, tables.Products).Delete(product); err != nil {
			return struct{}{}, err
		}
		if err := s.emit(uow, domain.EventProductDeleted, product); err != nil {
			return struct{}{}, err
		}

		s.logger.WithFields(log.Fields{"product_id": product.ID, "seller_id": product.SellerID}).Info("product deleted")
		return struct{}{}, nil
	})
	return err
}

// ListSellerProducts возвращает товары вызывающего продавца.
func (s *Service) ListSellerProducts(ctx context.Context, callerID string) ([]domain.Product, error) {
	return operation.Query(ctx, s.runner, "list_seller_products", func(ctx context.Context, uow *storage.UnitOfWork) ([]domain.Product, error) {
		seller, err := accounts.ResolveSeller(ctx, uow, callerID)
		if err != nil {
			return nil, err
		}
		return storage.GetRepository(uow, tables.Products).GetAllBy(ctx, storage.Eq("seller_id", seller.ID))
	})
}

// SearchProducts ищет товары по вхождению term в название без учёта регистра.
// Пустая строка возвращает весь каталог.
func (s *Service) SearchProducts(ctx context.Context, term string) ([]domain.Product, error) {
	return operation.Query(ctx, s.runner, "search_products", func(ctx context.Context, uow *storage.UnitOfWork) ([]domain.Product, error) {
		var filter storage.Filter
		if term != "" {
			filter = storage.ContainsFold("name", term)
		}
		return storage.GetRepository(uow, tables.Products).GetAllBy(ctx, filter)
	})
}

// ViewProducts возвращает весь каталог с отзывами.
func (s *Service) ViewProducts(ctx context.Context) ([]domain.Product, error) {
	return operation.Query(ctx, s.runner, "view_products", func(ctx context.Context, uow *storage.UnitOfWork) ([]domain.Product, error) {
		return storage.GetRepository(uow, tables.Products).GetAllBy(ctx, nil, tables.RelReviews)
	})
}

// loadOwned загружает товар вместе с продавцом одним запросом и проверяет владельца.
func (s *Service) loadOwned(ctx context.Context, uow *storage.UnitOfWork, callerID, productID string) (domain.Product, error) {
	product, found, err := storage.GetRepository(uow, tables.Products).
		GetSingleBy(ctx, storage.Eq("id", productID), tables.RelSeller)
	if err != nil {
		return domain.Product{}, err
	}
	if !found {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if callerID == "" || product.Seller == nil || product.Seller.UserID != callerID {
		s.logger.WithFields(log.Fields{"product_id": productID, "caller_id": callerID}).Warn("product ownership check failed")
		return domain.Product{}, domain.ErrNotProductOwner
	}
	return product, nil
}

func (s *Service) emit(uow *storage.UnitOfWork, eventType string, product domain.Product) error {
	return s.runner.Emit(uow, outbox.Event{
		AggregateType: "product",
		AggregateID:   product.ID,
		EventType:     eventType,
		Payload: map[string]any{
			"product_id": product.ID,
			"seller_id":  product.SellerID,
			"name":       product.Name,
			"price":      product.Price.String(),
		},
	})
}
