package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer публикует сообщения в Kafka синхронно.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// ProducerConfig возвращает конфигурацию идемпотентного sync producer.
func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // требуется для идемпотентности
	return config
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFromSync(producer), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (например, mocks.SyncProducer).
func NewProducerFromSync(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
}

// PublishEnvelope публикует конверт outbox-сообщения.
func (p *Producer) PublishEnvelope(topic string, envelope Envelope) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	if envelope.PublishedAt.IsZero() {
		envelope.PublishedAt = p.now().UTC()
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(envelope.Key()),
		Value:     sarama.ByteEncoder(value),
		Timestamp: envelope.PublishedAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(envelope.EventType)},
		},
	}
	return p.send(msg)
}

func (p *Producer) send(msg *sarama.ProducerMessage) error {
	entry := p.logger.WithFields(log.Fields{"topic": msg.Topic, "key": msg.Key})

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
