package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Результаты попыток публикации outbox.
const (
	PublishSent      = "sent"
	PublishRetry     = "retry_error"
	PublishFailed    = "failed"
	PublishDLQFailed = "dlq_failed"
)

// OutboxMetrics содержит метрики outbox worker. Методы безопасны для nil-получателя.
type OutboxMetrics struct {
	attempts      *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		attempts: register(registerer, "marketplace_outbox_publish_attempts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"})),
		pending: register(registerer, "marketplace_outbox_pending_records", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		})),
		oldestPending: register(registerer, "marketplace_outbox_oldest_pending_age_seconds", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		})),
	}
}

// RecordAttempt учитывает попытку публикации с результатом result.
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи на момент now.
func (m *OutboxMetrics) SetBacklog(stats domain.OutboxStats, now time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		m.oldestPending.Set(0)
		return
	}
	m.oldestPending.Set(max(now.Sub(stats.OldestPendingAt).Seconds(), 0))
}
