// Package memory, in-memory реализация хранилища для локальной разработки и тестов.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

// Store хранит строки всех таблиц. Коммит применяется к копиям затронутых таблиц
// и подменяет их целиком, так что частично применённых изменений не бывает.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*storage.Table
	rows   map[string]map[string]any
	locks  *keyedLocks
}

// NewStore создаёт пустое хранилище для перечисленных таблиц.
func NewStore(tables ...*storage.Table) *Store {
	s := &Store{
		tables: make(map[string]*storage.Table, len(tables)),
		rows:   make(map[string]map[string]any, len(tables)),
		locks:  newKeyedLocks(),
	}
	for _, t := range tables {
		s.tables[t.Name()] = t
		s.rows[t.Name()] = make(map[string]any)
	}
	return s
}

var _ storage.Factory = (*Store)(nil)

// Begin открывает единицу работы.
func (s *Store) Begin(ctx context.Context) (*storage.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	return storage.NewUnitOfWork(&session{store: s}), nil
}

// Ping всегда успешен, пока контекст жив.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Count возвращает количество строк в таблице.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[table])
}

func (s *Store) selectRows(t *storage.Table, q storage.Query, dst any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rows[t.Name()]
	if !ok {
		return fmt.Errorf("memory: unknown table %s", t.Name())
	}
	matched := make([]any, 0, len(rows))
	for _, rec := range rows {
		if q.Filter == nil || q.Filter.Match(t, rec) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return q.Less(t, matched[i], matched[j]) })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	for _, rec := range matched {
		t.Append(dst, rec)
	}
	return nil
}

func (s *Store) countRows(t *storage.Table, f storage.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rows[t.Name()]
	if !ok {
		return 0, fmt.Errorf("memory: unknown table %s", t.Name())
	}
	if f == nil {
		return len(rows), nil
	}
	n := 0
	for _, rec := range rows {
		if f.Match(t, rec) {
			n++
		}
	}
	return n, nil
}

func (s *Store) apply(changes []storage.Change) error {
	if len(changes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, work: make(map[string]map[string]any)}
	for _, ch := range changes {
		if err := tx.apply(ch); err != nil {
			return err
		}
	}
	if err := tx.validate(); err != nil {
		return err
	}
	for name, rows := range tx.work {
		s.rows[name] = rows
	}
	return nil
}

// memTx: рабочие копии таблиц одного коммита.
type memTx struct {
	store *Store
	work  map[string]map[string]any
}

func (tx *memTx) table(name string) (map[string]any, error) {
	if rows, ok := tx.work[name]; ok {
		return rows, nil
	}
	base, ok := tx.store.rows[name]
	if !ok {
		return nil, fmt.Errorf("memory: unknown table %s", name)
	}
	rows := maps.Clone(base)
	tx.work[name] = rows
	return rows, nil
}

func (tx *memTx) view(name string) map[string]any {
	if rows, ok := tx.work[name]; ok {
		return rows
	}
	return tx.store.rows[name]
}

func (tx *memTx) apply(ch storage.Change) error {
	rows, err := tx.table(ch.Table.Name())
	if err != nil {
		return err
	}
	_, exists := rows[ch.ID]
	switch ch.Op {
	case storage.OpInsert:
		if exists {
			return conflict("%s: duplicate key %s", ch.Table.Name(), ch.ID)
		}
		rows[ch.ID] = ch.Record
	case storage.OpUpdate:
		if !exists {
			return conflict("%s: row %s does not exist", ch.Table.Name(), ch.ID)
		}
		rows[ch.ID] = ch.Record
	case storage.OpDelete:
		if !exists {
			return conflict("%s: row %s does not exist", ch.Table.Name(), ch.ID)
		}
		return tx.delete(ch.Table, ch.ID)
	default:
		return fmt.Errorf("memory: unsupported op %s", ch.Op)
	}
	return nil
}

// delete удаляет строку и каскадно все строки, ссылающиеся на неё через Cascade.
func (tx *memTx) delete(t *storage.Table, id string) error {
	rows, err := tx.table(t.Name())
	if err != nil {
		return err
	}
	if _, ok := rows[id]; !ok {
		return nil
	}
	delete(rows, id)

	for _, child := range tx.store.tables {
		for _, fk := range child.ForeignKeys() {
			if fk.RefTable != t.Name() || fk.OnDelete != storage.Cascade {
				continue
			}
			var dependents []string
			for childID, rec := range tx.view(child.Name()) {
				if ref(child, rec, fk.Column) == id {
					dependents = append(dependents, childID)
				}
			}
			for _, childID := range dependents {
				if err := tx.delete(child, childID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// validate проверяет уникальность и ссылочную целостность затронутых таблиц.
func (tx *memTx) validate() error {
	for name := range tx.work {
		t := tx.store.tables[name]
		if err := tx.checkUnique(t); err != nil {
			return err
		}
	}
	for _, t := range tx.store.tables {
		for _, fk := range t.ForeignKeys() {
			_, childTouched := tx.work[t.Name()]
			_, parentTouched := tx.work[fk.RefTable]
			if !childTouched && !parentTouched {
				continue
			}
			parents := tx.view(fk.RefTable)
			for id, rec := range tx.view(t.Name()) {
				target := ref(t, rec, fk.Column)
				if target == "" {
					continue
				}
				if _, ok := parents[target]; !ok {
					return conflict("%s: row %s references missing %s %s", t.Name(), id, fk.RefTable, target)
				}
			}
		}
	}
	return nil
}

func (tx *memTx) checkUnique(t *storage.Table) error {
	for _, group := range t.Unique() {
		seen := make(map[string]string)
		for id, rec := range tx.view(t.Name()) {
			parts := make([]string, 0, len(group))
			for _, col := range group {
				v, _ := t.Field(rec, col)
				parts = append(parts, fmt.Sprint(storage.Normalize(v)))
			}
			key := strings.Join(parts, "\x00")
			if other, dup := seen[key]; dup {
				return conflict("%s: unique (%s) violated by %s and %s", t.Name(), strings.Join(group, ", "), other, id)
			}
			seen[key] = id
		}
	}
	return nil
}

func ref(t *storage.Table, rec any, col string) string {
	v, _ := t.Field(rec, col)
	s, _ := storage.Normalize(v).(string)
	return s
}

func conflict(format string, args ...any) error {
	return domain.Errorf(domain.KindConflict, format, args...)
}

func unavailable(err error) error {
	return domain.WrapError(domain.KindStorageUnavailable, "memory store", err)
}
