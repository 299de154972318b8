package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// eventPipeline доставляет события из outbox в Kafka, пока не вызван stop.
// Без брокеров pipeline пустой и события остаются pending.
type eventPipeline struct {
	producer *kafka.Producer
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *log.Entry
}

func startEventPipeline(ctx context.Context, cfg Config, repo outbox.Repository, logger *log.Entry) *eventPipeline {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox events stay pending")
		return &eventPipeline{logger: logger}
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("kafka producer is unavailable, outbox events stay pending")
		return &eventPipeline{logger: logger}
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")

	return runEventPipeline(ctx, newOutboxWorker(cfg, repo, producer, logger), producer, logger)
}

func runEventPipeline(ctx context.Context, worker *outbox.Worker, producer *kafka.Producer, logger *log.Entry) *eventPipeline {
	workerCtx, cancel := context.WithCancel(ctx)
	p := &eventPipeline{
		producer: producer,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger,
	}
	go func() {
		defer close(p.done)
		worker.Run(workerCtx)
	}()
	return p
}

// stop дожидается текущего цикла воркера и только потом закрывает producer.
func (p *eventPipeline) stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.logger.Info("outbox worker stopped")
	}
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		p.logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	p.logger.Info("kafka producer closed")
}

// newOutboxWorker публикует события в events topic, а исчерпавшие попытки в DLQ.
func newOutboxWorker(cfg Config, repo outbox.Repository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}
