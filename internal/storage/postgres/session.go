package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// txSession ведёт единицу работы в одной транзакции.
type txSession struct {
	tx   pgx.Tx
	done bool
}

var _ storage.Driver = (*txSession)(nil)

func (s *txSession) Select(ctx context.Context, t *storage.Table, q storage.Query, dst any) error {
	order := make([]string, 0, len(q.OrderBy)+1)
	order = append(order, q.OrderBy...)
	order = append(order, t.Key()+` COLLATE "C"`)

	query := psql.Select(t.Columns()...).
		From(t.Name()).
		OrderBy(order...)
	if q.Filter != nil {
		query = query.Where(q.Filter.Sqlizer())
	}
	if q.Limit > 0 {
		query = query.Limit(uint64(q.Limit))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build select %s: %w", t.Name(), err)
	}
	if err := pgxscan.Select(ctx, s.tx, dst, sql, args...); err != nil {
		return classify("select "+t.Name(), err)
	}
	return nil
}

func (s *txSession) Count(ctx context.Context, t *storage.Table, f storage.Filter) (int, error) {
	query := psql.Select("COUNT(*)").From(t.Name())
	if f != nil {
		query = query.Where(f.Sqlizer())
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", t.Name(), err)
	}
	var n int
	if err := pgxscan.Get(ctx, s.tx, &n, sql, args...); err != nil {
		return 0, classify("count "+t.Name(), err)
	}
	return n, nil
}

// Lock берёт транзакционную advisory-блокировку; она снимается при commit/rollback.
func (s *txSession) Lock(ctx context.Context, key string) error {
	if _, err := s.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return classify("advisory lock "+key, err)
	}
	return nil
}

func (s *txSession) Apply(ctx context.Context, changes []storage.Change) error {
	defer s.rollback(ctx)

	for _, ch := range changes {
		sql, args, err := statement(ch)
		if err != nil {
			return err
		}
		tag, err := s.tx.Exec(ctx, sql, args...)
		if err != nil {
			return classify(fmt.Sprintf("%s %s", ch.Op, ch.Table.Name()), err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Errorf(domain.KindConflict, "%s %s: row %s does not exist", ch.Op, ch.Table.Name(), ch.ID)
		}
	}

	if err := s.tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	s.done = true
	return nil
}

func (s *txSession) Release(ctx context.Context) error {
	s.rollback(ctx)
	return nil
}

func (s *txSession) rollback(ctx context.Context) {
	if s.done {
		return
	}
	s.done = true
	// Откат должен пройти даже при отменённом контексте запроса.
	_ = s.tx.Rollback(context.WithoutCancel(ctx))
}

func statement(ch storage.Change) (string, []any, error) {
	t := ch.Table
	var (
		sql  string
		args []any
		err  error
	)
	switch ch.Op {
	case storage.OpInsert:
		sql, args, err = psql.Insert(t.Name()).
			Columns(t.Columns()...).
			Values(t.Values(ch.Record)...).
			ToSql()
	case storage.OpUpdate:
		q := psql.Update(t.Name())
		values := t.Values(ch.Record)
		for i, col := range t.Columns() {
			if col == t.Key() {
				continue
			}
			q = q.Set(col, values[i])
		}
		sql, args, err = q.Where(sq.Eq{t.Key(): ch.ID}).ToSql()
	case storage.OpDelete:
		sql, args, err = psql.Delete(t.Name()).Where(sq.Eq{t.Key(): ch.ID}).ToSql()
	default:
		return "", nil, fmt.Errorf("unsupported op %s", ch.Op)
	}
	if err != nil {
		return "", nil, fmt.Errorf("build %s %s: %w", ch.Op, t.Name(), err)
	}
	return sql, args, nil
}
