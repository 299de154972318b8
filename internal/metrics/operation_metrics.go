package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ResultOK: метка успешной операции.
const ResultOK = "ok"

// OperationMetrics содержит метрики доменных операций маркетплейса.
// Методы безопасны для nil-получателя.
type OperationMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	commits      *prometheus.CounterVec
	outboxStaged *prometheus.CounterVec
	inFlight     prometheus.Gauge
}

// NewOperationMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOperationMetrics() *OperationMetrics {
	return NewOperationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOperationMetricsWithRegisterer регистрирует метрики в указанном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOperationMetricsWithRegisterer(registerer prometheus.Registerer) *OperationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OperationMetrics{
		operations: register(registerer, "marketplace_operations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_operations_total",
			Help: "Total number of domain operations by result",
		}, []string{"operation", "result"})),
		duration: register(registerer, "marketplace_operation_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_operation_duration_seconds",
			Help:    "Duration of domain operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		commits: register(registerer, "marketplace_uow_commits_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_uow_commits_total",
			Help: "Total number of unit of work commits by result",
		}, []string{"result"})),
		outboxStaged: register(registerer, "marketplace_outbox_staged_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_outbox_staged_total",
			Help: "Total number of outbox events staged by domain operations",
		}, []string{"event_type"})),
		inFlight: register(registerer, "marketplace_operations_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_operations_in_flight",
			Help: "Number of domain operations currently running",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// Start отмечает начало операции и возвращает функцию завершения.
func (m *OperationMetrics) Start(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
		m.operations.WithLabelValues(operation, Result(err)).Inc()
	}
}

// RecordCommit учитывает результат коммита единицы работы.
func (m *OperationMetrics) RecordCommit(err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(Result(err)).Inc()
}

// RecordOutboxStaged учитывает событие, поставленное в outbox.
func (m *OperationMetrics) RecordOutboxStaged(eventType string) {
	if m == nil {
		return
	}
	m.outboxStaged.WithLabelValues(eventType).Inc()
}

// Result превращает ошибку в метку: ok, категория доменной ошибки или internal.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	if kind, ok := domain.KindOf(err); ok {
		return string(kind)
	}
	return "internal"
}
