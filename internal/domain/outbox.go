package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus: состояние сообщения transactional outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// Типы событий, которые доменные операции кладут в outbox.
const (
	EventSellerRegistered = "seller.registered"
	EventBuyerRegistered  = "buyer.registered"
	EventProductCreated   = "product.created"
	EventProductUpdated   = "product.updated"
	EventProductDeleted   = "product.deleted"
	EventCartItemAdded    = "cart.item_added"
	EventOrderRecorded    = "order.recorded"
	EventReviewAdded      = "review.added"
)

// OutboxMessage хранит событие до публикации. Пишется в той же транзакции, что и изменение.
type OutboxMessage struct {
	ID            string       `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   string       `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	Attempts      int          `db:"attempts"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// DeadLetter кладётся в Payload сообщения DLQ: исходное событие и причина отказа.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}
