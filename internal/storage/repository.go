package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Repository даёт CRUD и выборки по предикату для одной таблицы.
// Чтения видят изменения, отложенные в той же единице работы.
// Отсутствие строки не является ошибкой.
type Repository[T any] interface {
	GetByID(ctx context.Context, id string) (T, bool, error)
	// GetSingleBy возвращает одну строку; при нескольких совпадениях, с наименьшим ключом.
	GetSingleBy(ctx context.Context, f Filter, includes ...string) (T, bool, error)
	// GetAllBy возвращает все совпадения, упорядоченные по ключу. nil-фильтр, вся таблица.
	GetAllBy(ctx context.Context, f Filter, includes ...string) ([]T, error)
	// Find возвращает строки выборки q в её порядке.
	Find(ctx context.Context, q Query, includes ...string) ([]T, error)
	// Count возвращает число строк под фильтром с учётом отложенных изменений.
	Count(ctx context.Context, f Filter) (int, error)
	// Add ставит вставку в очередь и присваивает ID, если он пуст.
	Add(rec *T) error
	Update(rec T) error
	Delete(rec T) error
}

type repository[T any] struct {
	uow    *UnitOfWork
	schema *Schema[T]
}

// GetRepository возвращает репозиторий таблицы в рамках единицы работы.
func GetRepository[T any](uow *UnitOfWork, schema *Schema[T]) Repository[T] {
	return &repository[T]{uow: uow, schema: schema}
}

func (r *repository[T]) GetByID(ctx context.Context, id string) (T, bool, error) {
	return r.GetSingleBy(ctx, Eq(r.schema.def.Key, id))
}

func (r *repository[T]) GetSingleBy(ctx context.Context, f Filter, includes ...string) (T, bool, error) {
	var zero T
	rows, err := r.query(ctx, Query{Filter: f, Limit: 1})
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	first := rows[:1]
	if err := r.include(ctx, first, includes); err != nil {
		return zero, false, err
	}
	return first[0], true, nil
}

func (r *repository[T]) GetAllBy(ctx context.Context, f Filter, includes ...string) ([]T, error) {
	return r.Find(ctx, Where(f), includes...)
}

func (r *repository[T]) Find(ctx context.Context, q Query, includes ...string) ([]T, error) {
	rows, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := r.include(ctx, rows, includes); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository[T]) Count(ctx context.Context, f Filter) (int, error) {
	if len(r.uow.staged(r.schema.table)) == 0 {
		return r.uow.countRows(ctx, r.schema.table, f)
	}
	rows, err := r.query(ctx, Where(f))
	return len(rows), err
}

func (r *repository[T]) Add(rec *T) error {
	if rec == nil {
		return domain.NewError(domain.KindInvalidArgument, "nil record")
	}
	if r.schema.def.ID(rec) == "" {
		r.schema.def.SetID(rec, uuid.NewString())
	}
	return r.stage(OpInsert, *rec)
}

func (r *repository[T]) Update(rec T) error {
	return r.stage(OpUpdate, rec)
}

func (r *repository[T]) Delete(rec T) error {
	return r.stage(OpDelete, rec)
}

func (r *repository[T]) stage(op Op, rec T) error {
	r.schema.reset(&rec)
	id := r.schema.def.ID(&rec)
	if id == "" {
		return domain.Errorf(domain.KindInvalidArgument, "%s: %s without id", r.schema.def.Table, op)
	}
	return r.uow.stage(Change{Op: op, Table: r.schema.table, ID: id, Record: rec})
}

// query читает строки из драйвера и накладывает поверх отложенные изменения.
// При отложенных изменениях ограничение применяется после наложения.
func (r *repository[T]) query(ctx context.Context, q Query) ([]T, error) {
	t := r.schema.table
	staged := r.uow.staged(t)

	base := q
	if len(staged) > 0 {
		base.Limit = 0
	}
	var rows []T
	if err := r.uow.selectRows(ctx, t, base, &rows); err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		return rows, nil
	}

	byID := make(map[string]T, len(rows))
	for i := range rows {
		byID[r.schema.def.ID(&rows[i])] = rows[i]
	}
	for _, ch := range staged {
		switch ch.Op {
		case OpInsert, OpUpdate:
			rec := ch.Record.(T)
			if q.Filter == nil || q.Filter.Match(t, rec) {
				byID[ch.ID] = rec
			} else {
				delete(byID, ch.ID)
			}
		case OpDelete:
			delete(byID, ch.ID)
		}
	}

	out := make([]T, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return q.Less(t, out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *repository[T]) include(ctx context.Context, rows []T, includes []string) error {
	for _, name := range includes {
		rel, ok := r.schema.def.Relations[name]
		if !ok {
			return domain.Errorf(domain.KindInvalidArgument, "%s: unknown include %q", r.schema.def.Table, name)
		}
		if len(rows) == 0 {
			continue
		}
		if err := rel.Load(ctx, r.uow, rows); err != nil {
			return fmt.Errorf("%s: load %s: %w", r.schema.def.Table, name, err)
		}
	}
	return nil
}
