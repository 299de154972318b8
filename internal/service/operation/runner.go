// Package operation выполняет доменные операции в отдельной единице работы:
// таймаут, коммит, метрики и постановка событий в outbox.
package operation

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

const defaultTimeout = 5 * time.Second

// Runner открывает единицу работы на каждую операцию.
type Runner struct {
	factory storage.Factory
	metrics *metrics.OperationMetrics
	logger  *log.Entry
	timeout time.Duration
	now     func() time.Time
}

// Option настраивает Runner.
type Option func(*Runner)

func WithMetrics(m *metrics.OperationMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(logger *log.Entry) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTimeout ограничивает длительность операции; <=0 отключает ограничение.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.timeout = timeout }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner создаёт Runner поверх фабрики единиц работы.
func NewRunner(factory storage.Factory, options ...Option) *Runner {
	r := &Runner{
		factory: factory,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "operation")
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Now возвращает текущее время сервера в UTC.
func (r *Runner) Now() time.Time {
	return r.now().UTC()
}

// Emit ставит событие в outbox внутри текущей единицы работы.
func (r *Runner) Emit(uow *storage.UnitOfWork, event outbox.Event) error {
	if err := outbox.Stage(uow, event, r.Now()); err != nil {
		return err
	}
	r.metrics.RecordOutboxStaged(event.EventType)
	return nil
}

// Do выполняет fn и коммитит единицу работы. При любой ошибке изменения отбрасываются.
func Do[T any](ctx context.Context, r *Runner, name string, fn func(context.Context, *storage.UnitOfWork) (T, error)) (result T, err error) {
	return run(ctx, r, name, true, fn)
}

// Query выполняет fn только на чтение; единица работы откатывается.
func Query[T any](ctx context.Context, r *Runner, name string, fn func(context.Context, *storage.UnitOfWork) (T, error)) (T, error) {
	return run(ctx, r, name, false, fn)
}

func run[T any](ctx context.Context, r *Runner, name string, commit bool, fn func(context.Context, *storage.UnitOfWork) (T, error)) (result T, err error) {
	done := r.metrics.Start(name)
	defer func() { done(err) }()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var zero T
	uow, err := r.factory.Begin(ctx)
	if err != nil {
		return zero, timeoutAware(ctx, err)
	}
	defer uow.Rollback(ctx)

	result, err = fn(ctx, uow)
	if err != nil {
		return zero, timeoutAware(ctx, err)
	}
	if !commit {
		return result, nil
	}

	r.logger.WithFields(log.Fields{"operation": name, "changes": uow.Pending()}).Debug("committing unit of work")
	err = uow.Commit(ctx)
	r.metrics.RecordCommit(err)
	if err != nil {
		r.logger.WithError(err).WithField("operation", name).Warn("commit failed")
		return zero, timeoutAware(ctx, err)
	}
	return result, nil
}

// timeoutAware превращает истечение контекста в StorageUnavailable, если ошибка ещё не классифицирована.
func timeoutAware(ctx context.Context, err error) error {
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.KindStorageUnavailable, "operation timed out", err)
	}
	return err
}
