package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/tables"
)

// Event: событие, которое доменная операция кладёт в outbox.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Stage ставит событие в outbox той же единицы работы, что и изменение данных.
func Stage(uow *storage.UnitOfWork, event Event, now time.Time) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	msg := domain.OutboxMessage{
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return storage.GetRepository(uow, tables.Outbox).Add(&msg)
}

// Store реализует Repository поверх единиц работы, поэтому одинаково работает с любым хранилищем.
type Store struct {
	factory storage.Factory
	now     func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore создаёт outbox-репозиторий.
func NewStore(factory storage.Factory) *Store {
	return &Store{factory: factory, now: time.Now}
}

var pendingFilter = storage.Eq("status", domain.OutboxStatusPending)

// PullPending возвращает до limit pending-сообщений в порядке создания; limit <= 0 снимает ограничение.
func (s *Store) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var msgs []domain.OutboxMessage
	err := s.read(ctx, func(repo storage.Repository[domain.OutboxMessage]) error {
		var err error
		msgs, err = repo.Find(ctx, storage.Query{
			Filter:  pendingFilter,
			OrderBy: []string{"created_at"},
			Limit:   limit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load pending outbox: %w", err)
	}
	return msgs, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (s *Store) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := s.read(ctx, func(repo storage.Repository[domain.OutboxMessage]) error {
		count, err := repo.Count(ctx, pendingFilter)
		if err != nil || count == 0 {
			return err
		}
		oldest, err := repo.Find(ctx, storage.Query{
			Filter:  pendingFilter,
			OrderBy: []string{"created_at"},
			Limit:   1,
		})
		if err != nil {
			return err
		}
		stats.PendingCount = count
		if len(oldest) > 0 {
			stats.OldestPendingAt = oldest[0].CreatedAt
		}
		return nil
	})
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	return stats, nil
}

// MarkSent фиксирует публикацию; attempts: число попыток публикации в этом цикле.
func (s *Store) MarkSent(ctx context.Context, id string, attempts int) error {
	return s.mark(ctx, id, domain.OutboxStatusSent, attempts)
}

// MarkFailed переводит сообщение в failed после attempts неудачных попыток.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int) error {
	return s.mark(ctx, id, domain.OutboxStatusFailed, attempts)
}

func (s *Store) read(ctx context.Context, fn func(repo storage.Repository[domain.OutboxMessage]) error) error {
	uow, err := s.factory.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)
	return fn(storage.GetRepository(uow, tables.Outbox))
}

func (s *Store) mark(ctx context.Context, id string, status domain.OutboxStatus, attempts int) error {
	uow, err := s.factory.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	repo := storage.GetRepository(uow, tables.Outbox)
	msg, ok, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.KindNotFound, "outbox message %s not found", id)
	}
	msg.Status = status
	msg.Attempts += max(attempts, 0)
	msg.UpdatedAt = s.now().UTC()
	if err := repo.Update(msg); err != nil {
		return err
	}
	return uow.Commit(ctx)
}
