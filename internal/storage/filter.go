package storage

import (
	"reflect"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

// Filter: предикат выборки. Вычисляется в памяти (Match) и транслируется в SQL (Sqlizer).
// nil-фильтр означает «все строки».
type Filter interface {
	Match(t *Table, rec any) bool
	Sqlizer() sq.Sqlizer
}

// Eq совпадает, если колонка равна значению.
func Eq(column string, value any) Filter {
	return eqFilter{column: column, value: value}
}

// In: значение колонки входит в набор. Пустой набор не совпадает ни с чем.
func In[V any](column string, values []V) Filter {
	vals := make([]any, 0, len(values))
	for _, v := range values {
		vals = append(vals, v)
	}
	return inFilter{column: column, values: vals}
}

// ContainsFold: строковая колонка содержит подстроку без учёта регистра.
func ContainsFold(column, term string) Filter {
	return containsFilter{column: column, term: term}
}

// And объединяет фильтры; nil-элементы пропускаются.
func And(filters ...Filter) Filter {
	out := make(andFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

type eqFilter struct {
	column string
	value  any
}

func (f eqFilter) Match(t *Table, rec any) bool {
	v, ok := t.Field(rec, f.column)
	return ok && Equal(v, f.value)
}

func (f eqFilter) Sqlizer() sq.Sqlizer {
	return sq.Eq{f.column: Normalize(f.value)}
}

type inFilter struct {
	column string
	values []any
}

func (f inFilter) Match(t *Table, rec any) bool {
	v, ok := t.Field(rec, f.column)
	if !ok {
		return false
	}
	for _, candidate := range f.values {
		if Equal(v, candidate) {
			return true
		}
	}
	return false
}

// Sqlizer передаёт строковый набор одним параметром-массивом: число параметров
// в запросе не зависит от размера набора.
func (f inFilter) Sqlizer() sq.Sqlizer {
	vals := make([]any, 0, len(f.values))
	strs := make([]string, 0, len(f.values))
	for _, v := range f.values {
		v = Normalize(v)
		vals = append(vals, v)
		if s, ok := v.(string); ok {
			strs = append(strs, s)
		}
	}
	if len(vals) == 0 || len(strs) != len(vals) {
		// squirrel превращает пустой список в (1=0).
		return sq.Eq{f.column: vals}
	}
	return sq.Expr(f.column+" = ANY(?)", strs)
}

type containsFilter struct {
	column string
	term   string
}

func (f containsFilter) Match(t *Table, rec any) bool {
	v, ok := t.Field(rec, f.column)
	if !ok {
		return false
	}
	s, ok := Normalize(v).(string)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(f.term))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f containsFilter) Sqlizer() sq.Sqlizer {
	return sq.ILike{f.column: "%" + likeEscaper.Replace(f.term) + "%"}
}

type andFilter []Filter

func (f andFilter) Match(t *Table, rec any) bool {
	for _, part := range f {
		if !part.Match(t, rec) {
			return false
		}
	}
	return true
}

func (f andFilter) Sqlizer() sq.Sqlizer {
	out := make(sq.And, 0, len(f))
	for _, part := range f {
		out = append(out, part.Sqlizer())
	}
	return out
}

// Normalize приводит именованные строковые типы (статусы) к string.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String && rv.Type() != reflect.TypeOf("") {
		return rv.String()
	}
	return v
}

// Equal сравнивает значения колонок с учётом decimal и time.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
