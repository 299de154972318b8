// Package review принимает отзывы о товарах только от покупателей, купивших товар.
package review

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

// Input содержит оценку и текст отзыва.
type Input struct {
	Rating  int
	Comment string
}

// Service реализует отзывы.
type Service struct {
	runner *operation.Runner
	logger *log.Entry
}

// NewService создаёт сервис отзывов.
func NewService(runner *operation.Runner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "review")
	}
	return &Service{runner: runner, logger: logger}
}

// AddReview сохраняет отзыв покупателя и возвращает его идентификатор.
func (s *Service) AddReview(ctx context.Context, callerID, productID string, input Input) (string, error) {
	return operation.Do(ctx, s.runner, "add_review", func(ctx context.Context, uow *storage.UnitOfWork) (string, error) {
		buyer, err := accounts.ResolveBuyer(ctx, uow, callerID)
		if err != nil {
			return "", err
		}
		if input.Rating < domain.MinRating || input.Rating > domain.MaxRating {
			return "", domain.ErrRatingInvalid
		}
		if _, found, err := storage.GetRepository(uow, tables.Products).GetByID(ctx, productID); err != nil {
			return "", err
		} else if !found {
			return "", domain.ErrProductNotFound
		}

		purchased, err := hasPurchased(ctx, uow, buyer.ID, productID)
		if err != nil {
			return "", err
		}
		if !purchased {
			s.logger.WithFields(log.Fields{"buyer_id": buyer.ID, "product_id": productID}).Info("review rejected: no purchase")
			return "", domain.ErrNoQualifyingPurchase
		}

		review := domain.ProductReview{
			ProductID: productID,
			BuyerID:   buyer.ID,
			Rating:    input.Rating,
			Comment:   input.Comment,
			CreatedAt: s.runner.Now(),
		}
		if err := storage.GetRepository(uow, tables.Reviews).Add(&review); err != nil {
			return "", err
		}
		if err := s.runner.Emit(uow, outbox.Event{
			AggregateType: "product",
			AggregateID:   productID,
			EventType:     domain.EventReviewAdded,
			Payload: map[string]any{
				"review_id":  review.ID,
				"product_id": productID,
				"buyer_id":   buyer.ID,
				"rating":     review.Rating,
			},
		}); err != nil {
			return "", err
		}

		s.logger.WithFields(log.Fields{"review_id": review.ID, "product_id": productID, "buyer_id": buyer.ID}).Info("review added")
		return review.ID, nil
	})
}

// ListProductReviews возвращает отзывы о товаре.
func (s *Service) ListProductReviews(ctx context.Context, productID string) ([]domain.ProductReview, error) {
	return operation.Query(ctx, s.runner, "list_product_reviews", func(ctx context.Context, uow *storage.UnitOfWork) ([]domain.ProductReview, error) {
		if _, found, err := storage.GetRepository(uow, tables.Products).GetByID(ctx, productID); err != nil {
			return nil, err
		} else if !found {
			return nil, domain.ErrProductNotFound
		}
		return storage.GetRepository(uow, tables.Reviews).GetAllBy(ctx, storage.Eq("product_id", productID))
	})
}

// hasPurchased ищет товар среди позиций завершённых заказов покупателя.
func hasPurchased(ctx context.Context, uow *storage.UnitOfWork, buyerID, productID string) (bool, error) {
	orders, err := storage.GetRepository(uow, tables.Orders).GetAllBy(ctx, storage.And(
		storage.Eq("buyer_id", buyerID),
		storage.Eq("status", string(domain.OrderStatusCompleted)),
	), tables.RelItems)
	if err != nil {
		return false, err
	}
	for i := range orders {
		if orders[i].Contains(productID) {
			return true, nil
		}
	}
	return false, nil
}
