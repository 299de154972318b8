package storage

import (
	"context"
	"fmt"
)

// OnDelete задаёт поведение внешнего ключа при удалении родительской строки.
type OnDelete int

const (
	// Restrict запрещает удалять строку, на которую есть ссылки.
	Restrict OnDelete = iota
	// Cascade удаляет ссылающиеся строки вместе с родительской.
	Cascade
)

// ForeignKey описывает ссылку Column -> RefTable.key. Пустое значение колонки трактуется как NULL.
type ForeignKey struct {
	Column   string
	RefTable string
	OnDelete OnDelete
}

// Column связывает имя колонки с полем сущности.
type Column[T any] struct {
	Name string
	Get  func(*T) any
}

// Relation: навигационное свойство, подгружаемое по имени (include).
type Relation[T any] struct {
	// Load заполняет связь у всех переданных сущностей в рамках той же единицы работы.
	Load func(ctx context.Context, uow *UnitOfWork, items []T) error
	// Reset очищает связь перед сохранением.
	Reset func(*T)
}

// SchemaDef: описание таблицы сущности T.
type SchemaDef[T any] struct {
	Table       string
	Key         string
	Columns     []Column[T]
	ID          func(*T) string
	SetID       func(*T, string)
	Unique      [][]string
	ForeignKeys []ForeignKey
	Relations   map[string]Relation[T]
}

// Schema: проверенное описание таблицы с типизированным доступом к полям.
type Schema[T any] struct {
	def     SchemaDef[T]
	getters map[string]func(*T) any
	table   *Table
}

// NewSchema проверяет описание и строит схему. Ошибка описания, ошибка программиста, поэтому panic.
func NewSchema[T any](def SchemaDef[T]) *Schema[T] {
	if def.Table == "" {
		panic("storage: schema table name is empty")
	}
	if def.Key == "" {
		def.Key = "id"
	}
	if def.ID == nil || def.SetID == nil {
		panic(fmt.Sprintf("storage: schema %s has no id accessors", def.Table))
	}

	s := &Schema[T]{def: def, getters: make(map[string]func(*T) any, len(def.Columns))}
	columns := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		if _, dup := s.getters[c.Name]; dup {
			panic(fmt.Sprintf("storage: schema %s has duplicate column %s", def.Table, c.Name))
		}
		s.getters[c.Name] = c.Get
		columns = append(columns, c.Name)
	}
	if _, ok := s.getters[def.Key]; !ok {
		panic(fmt.Sprintf("storage: schema %s has no key column %s", def.Table, def.Key))
	}
	for _, group := range def.Unique {
		for _, col := range group {
			if _, ok := s.getters[col]; !ok {
				panic(fmt.Sprintf("storage: schema %s unique column %s is unknown", def.Table, col))
			}
		}
	}
	for _, fk := range def.ForeignKeys {
		if _, ok := s.getters[fk.Column]; !ok {
			panic(fmt.Sprintf("storage: schema %s foreign key column %s is unknown", def.Table, fk.Column))
		}
	}

	s.table = &Table{
		name:        def.Table,
		key:         def.Key,
		columns:     columns,
		unique:      def.Unique,
		foreignKeys: def.ForeignKeys,
		id: func(rec any) string {
			r := rec.(T)
			return def.ID(&r)
		},
		field: func(rec any, col string) (any, bool) {
			get, ok := s.getters[col]
			if !ok {
				return nil, false
			}
			r := rec.(T)
			return get(&r), true
		},
		appendTo: func(dst any, rec any) {
			out := dst.(*[]T)
			*out = append(*out, rec.(T))
		},
	}
	return s
}

// Table возвращает нетипизированное представление схемы для драйверов.
func (s *Schema[T]) Table() *Table {
	return s.table
}

func (s *Schema[T]) reset(rec *T) {
	for _, rel := range s.def.Relations {
		if rel.Reset != nil {
			rel.Reset(rec)
		}
	}
}

// Table: нетипизированное описание таблицы, с которым работают драйверы.
type Table struct {
	name        string
	key         string
	columns     []string
	unique      [][]string
	foreignKeys []ForeignKey

	id       func(rec any) string
	field    func(rec any, col string) (any, bool)
	appendTo func(dst any, rec any)
}

func (t *Table) Name() string              { return t.name }
func (t *Table) Key() string               { return t.key }
func (t *Table) Columns() []string         { return t.columns }
func (t *Table) Unique() [][]string        { return t.unique }
func (t *Table) ForeignKeys() []ForeignKey { return t.foreignKeys }
func (t *Table) ID(rec any) string         { return t.id(rec) }
func (t *Table) Append(dst any, rec any)   { t.appendTo(dst, rec) }

// Field возвращает значение колонки записи.
func (t *Table) Field(rec any, col string) (any, bool) {
	return t.field(rec, col)
}

// Values возвращает значения всех колонок в порядке Columns.
func (t *Table) Values(rec any) []any {
	values := make([]any, 0, len(t.columns))
	for _, col := range t.columns {
		v, _ := t.field(rec, col)
		values = append(values, Normalize(v))
	}
	return values
}
