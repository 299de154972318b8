// Package accounts регистрирует продавцов и покупателей и сопоставляет
// идентификатор вызывающего с его ролью.
package accounts

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/operation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// SellerProfile: регистрационные данные продавца.
type SellerProfile struct {
	FirstName    string
	LastName     string
	BusinessName string
	Email        string
	PhoneNumber  string
}

// BuyerProfile: регистрационные данные покупателя.
type BuyerProfile struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
}

// Service управляет учётными записями.
type Service struct {
	runner *operation.Runner
	logger *log.Entry
}

// NewService создаёт сервис учётных записей.
func NewService(runner *operation.Runner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "accounts")
	}
	return &Service{runner: runner, logger: logger}
}

// RegisterSeller делает пользователя продавцом. Повторная регистрация возвращает Conflict.
func (s *Service) RegisterSeller(ctx context.Context, userID string, profile SellerProfile) (string, error) {
	return operation.Do(ctx, s.runner, "register_seller", func(ctx context.Context, uow *storage.UnitOfWork) (string, error) {
		if userID == "" {
			return "", domain.ErrUserIDRequired
		}
		repo := storage.GetRepository(uow, tables.Sellers)
		if _, found, err := repo.GetSingleBy(ctx, storage.Eq("user_id", userID)); err != nil {
			return "", err
		} else if found {
			return "", domain.ErrAccountExists
		}

		seller := domain.Seller{
			UserID:       userID,
			FirstName:    profile.FirstName,
			LastName:     profile.LastName,
			BusinessName: profile.BusinessName,
			Email:        profile.Email,
			PhoneNumber:  profile.PhoneNumber,
			CreatedAt:    s.runner.Now(),
		}
		if err := repo.Add(&seller); err != nil {
			return "", err
		}
		if err := s.runner.Emit(uow, outbox.Event{
			AggregateType: "seller",
			AggregateID:   seller.ID,
			EventType:     domain.EventSellerRegistered,
			Payload:       map[string]string{"seller_id": seller.ID, "user_id": userID},
		}); err != nil {
			return "", err
		}

		s.logger.WithFields(log.Fields{"seller_id": seller.ID, "user_id": userID}).Info("seller registered")
		return seller.ID, nil
	})
}

// RegisterBuyer делает пользователя покупателем.
func (s *Service) RegisterBuyer(ctx context.Context, userID string, profile BuyerProfile) (string, error) {
	return operation.Do(ctx, s.runner, "register_buyer", func(ctx context.Context, uow *storage.UnitOfWork) (string, error) {
		if userID == "" {
			return "", domain.ErrUserIDRequired
		}
		repo := storage.GetRepository(uow, tables.Buyers)
		if _, found, err := repo.GetSingleBy(ctx, storage.Eq("user_id", userID)); err != nil {
			return "", err
		} else if found {
			return "", domain.ErrAccountExists
		}

		buyer := domain.Buyer{
			UserID:      userID,
			FirstName:   profile.FirstName,
			LastName:    profile.LastName,
			Email:       profile.Email,
			PhoneNumber: profile.PhoneNumber,
			CreatedAt:   s.runner.Now(),
		}
		if err := repo.Add(&buyer); err != nil {
			return "", err
		}
		if err := s.runner.Emit(uow, outbox.Event{
			AggregateType: "buyer",
			AggregateID:   buyer.ID,
			EventType:     domain.EventBuyerRegistered,
			Payload:       map[string]string{"buyer_id": buyer.ID, "user_id": userID},
		}); err != nil {
			return "", err
		}

		s.logger.WithFields(log.Fields{"buyer_id": buyer.ID, "user_id": userID}).Info("buyer registered")
		return buyer.ID, nil
	})
}

// ResolveSeller находит продавца по идентификатору вызывающего внутри единицы работы.
func ResolveSeller(ctx context.Context, uow *storage.UnitOfWork, callerID string) (domain.Seller, error) {
	if callerID == "" {
		return domain.Seller{}, domain.ErrNotSeller
	}
	seller, found, err := storage.GetRepository(uow, tables.Sellers).GetSingleBy(ctx, storage.Eq("user_id", callerID))
	if err != nil {
		return domain.Seller{}, err
	}
	if !found {
		return domain.Seller{}, domain.ErrNotSeller
	}
	return seller, nil
}

// ResolveBuyer находит покупателя по идентификатору вызывающего.
func ResolveBuyer(ctx context.Context, uow *storage.UnitOfWork, callerID string) (domain.Buyer, error) {
	if callerID == "" {
		return domain.Buyer{}, domain.ErrNotBuyer
	}
	buyer, found, err := storage.GetRepository(uow, tables.Buyers).GetSingleBy(ctx, storage.Eq("user_id", callerID))
	if err != nil {
		return domain.Buyer{}, err
	}
	if !found {
		return domain.Buyer{}, domain.ErrNotBuyer
	}
	return buyer, nil
}
