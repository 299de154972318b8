package kafka

import (
	"encoding/json"
	"time"
)

// Topics маркетплейса.
const (
	TopicMarketplaceEvents = "marketplace.events"
	TopicDeadLetterQueue   = "marketplace.dlq"
)

// HeaderEventType дублирует тип события в заголовке сообщения.
const HeaderEventType = "x-event-type"

// Envelope: формат сообщения, которое публикуется из outbox.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Key возвращает ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
