package storage

import (
	"cmp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Query: выборка по фильтру с сортировкой и ограничением.
// Строки с равными значениями OrderBy упорядочиваются по ключу; Limit <= 0 снимает ограничение.
type Query struct {
	Filter  Filter
	OrderBy []string
	Limit   int
}

// Where возвращает выборку всех строк под фильтром в порядке ключа.
func Where(f Filter) Query {
	return Query{Filter: f}
}

// Less сравнивает две записи таблицы t в порядке выборки.
func (q Query) Less(t *Table, a, b any) bool {
	for _, col := range q.OrderBy {
		av, _ := t.Field(a, col)
		bv, _ := t.Field(b, col)
		if c := Compare(av, bv); c != 0 {
			return c < 0
		}
	}
	return t.ID(a) < t.ID(b)
}

// Compare упорядочивает значения колонок одного типа. Значения разных или
// несравнимых типов считаются равными.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return cmp.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp.Compare(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case decimal.Decimal:
		if bv, ok := b.(decimal.Decimal); ok {
			return av.Cmp(bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}
