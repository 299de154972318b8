package kafka

import (
	"encoding/json"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в один topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher для transactional outbox. Пустой topic означает marketplace.events.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicMarketplaceEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	return p.producer.PublishEnvelope(p.topic, Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
