package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnitOfWorkClosed возвращается при работе с уже закоммиченной или откаченной единицей работы.
var ErrUnitOfWorkClosed = errors.New("unit of work is closed")

// Op: вид отложенного изменения.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Change: одно отложенное изменение. Для OpDelete Record может быть nil.
type Change struct {
	Op     Op
	Table  *Table
	ID     string
	Record any
}

// Driver реализует транзакционную сессию конкретного хранилища.
type Driver interface {
	// Select дописывает в dst (*[]T) строки выборки q в её порядке.
	Select(ctx context.Context, t *Table, q Query, dst any) error
	// Count возвращает число строк под фильтром; nil-фильтр, вся таблица.
	Count(ctx context.Context, t *Table, f Filter) (int, error)
	// Lock берёт блокировку по ключу до конца сессии. Повторный Lock того же ключа, no-op.
	Lock(ctx context.Context, key string) error
	// Apply атомарно применяет изменения и завершает сессию.
	Apply(ctx context.Context, changes []Change) error
	// Release завершает сессию без изменений.
	Release(ctx context.Context) error
}

// Factory открывает новую единицу работы.
type Factory interface {
	Begin(ctx context.Context) (*UnitOfWork, error)
}

// UnitOfWork собирает изменения всех репозиториев одной операции и применяет их одним коммитом.
// Не предназначена для конкурентного использования.
type UnitOfWork struct {
	driver  Driver
	changes []Change
	closed  bool
}

// NewUnitOfWork оборачивает сессию драйвера.
func NewUnitOfWork(driver Driver) *UnitOfWork {
	return &UnitOfWork{driver: driver}
}

// Lock сериализует операции по ключу (например, корзину покупателя) до Commit/Rollback.
func (u *UnitOfWork) Lock(ctx context.Context, key string) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	return u.driver.Lock(ctx, key)
}

// Pending возвращает число отложенных изменений.
func (u *UnitOfWork) Pending() int {
	return len(u.changes)
}

// Commit применяет все изменения как одну транзакцию. После вызова единица работы закрыта
// независимо от результата; при ошибке ничего не сохраняется.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	u.closed = true
	changes := u.changes
	u.changes = nil
	return u.driver.Apply(ctx, changes)
}

// Rollback отбрасывает изменения. Повторный вызов и вызов после Commit, no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.changes = nil
	return u.driver.Release(ctx)
}

func (u *UnitOfWork) stage(ch Change) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	u.changes = append(u.changes, ch)
	return nil
}

func (u *UnitOfWork) selectRows(ctx context.Context, t *Table, q Query, dst any) error {
	if u.closed {
		return ErrUnitOfWorkClosed
	}
	return u.driver.Select(ctx, t, q, dst)
}

func (u *UnitOfWork) countRows(ctx context.Context, t *Table, f Filter) (int, error) {
	if u.closed {
		return 0, ErrUnitOfWorkClosed
	}
	return u.driver.Count(ctx, t, f)
}

func (u *UnitOfWork) staged(t *Table) []Change {
	var out []Change
	for _, ch := range u.changes {
		if ch.Table == t {
			out = append(out, ch)
		}
	}
	return out
}
