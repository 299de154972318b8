package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Repository: хранилище outbox, с которым работает воркер.
type Repository interface {
	PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	Stats(ctx context.Context) (domain.OutboxStats, error)
	// MarkSent и MarkFailed добавляют attempts к счётчику попыток сообщения.
	MarkSent(ctx context.Context, id string, attempts int) error
	MarkFailed(ctx context.Context, id string, attempts int) error
}

// Worker публикует pending-сообщения из outbox. Сообщение, не опубликованное за
// maxAttempts попыток, уходит в DLQ и помечается failed.
type Worker struct {
	repo      Repository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.OutboxMetrics
	logger    *log.Entry
	now       func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(w *Worker) { w.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения за цикл.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) { w.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; каждая следующая вдвое длиннее.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// NewWorker создаёт outbox worker. Некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo Repository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		now:            time.Now,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetrics()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	w.retryBaseDelay = max(w.retryBaseDelay, 0)
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce обрабатывает один батч и возвращает число опубликованных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			sent++
		}
	}

	w.refreshBacklog(ctx)
	return sent
}

// deliver публикует одно сообщение и фиксирует итог в хранилище.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
	})

	attempts, err := w.publishWithRetry(ctx, msg)
	switch {
	case err == nil:
		if err := w.repo.MarkSent(ctx, msg.ID, attempts); err != nil {
			entry.WithError(err).Warn("failed to mark outbox as sent")
			return false
		}
		return true
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// остаётся pending до следующего запуска
		return false
	}

	entry.WithError(err).Error("outbox publish failed after retries")
	w.metrics.RecordAttempt(metrics.PublishFailed)
	if dlqErr := w.deadLetter(msg, attempts, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("failed to publish to DLQ")
		w.metrics.RecordAttempt(metrics.PublishDLQFailed)
	}
	if markErr := w.repo.MarkFailed(ctx, msg.ID, attempts); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark outbox as failed")
	}
	return false
}

// publishWithRetry возвращает число сделанных попыток публикации.
func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			w.metrics.RecordAttempt(metrics.PublishSent)
			return attempt, nil
		}
		w.metrics.RecordAttempt(metrics.PublishRetry)

		if attempt >= w.maxAttempts {
			break
		}
		if err := sleep(ctx, backoff(w.retryBaseDelay, attempt)); err != nil {
			return attempt, err
		}
	}
	return w.maxAttempts, fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

// deadLetter публикует в DLQ исходное событие вместе с причиной отказа.
func (w *Worker) deadLetter(msg domain.OutboxMessage, attempts int, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	payload, err := json.Marshal(domain.DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Attempts:      msg.Attempts + attempts,
		PublishError:  publishErr.Error(),
		FailedAt:      w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := msg
	letter.Payload = payload
	if err := w.dlq.Publish(letter); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats, w.now())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff возвращает base * 2^(attempt-1), ограниченное максимальной Duration.
func backoff(base time.Duration, attempt int) time.Duration {
	const ceiling = time.Duration(1<<63 - 1)
	if base <= 0 {
		return 0
	}
	delay := base
	for range attempt - 1 {
		if delay > ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return delay
}
