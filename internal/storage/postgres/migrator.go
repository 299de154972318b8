package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

const (
	migrationsGlob       = "sql/migrations/*.sql"
	migrationsTable      = "schema_migrations"
	migrationLockKey     = int64(0x6d6b7470)
	migrationLockTimeout = 5 * time.Second
	migrationTableDDL    = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) String() string {
	return fmt.Sprintf("%d_%s", m.Version, m.Name)
}

// migrationSet хранит миграции по возрастанию версии.
type migrationSet struct {
	ordered   []migration
	byVersion map[int64]migration
}

// migrationStep применяет не больше одной миграции; false означает, что применять нечего.
type migrationStep func(ctx context.Context, tx pgx.Tx) (bool, error)

// MigrateUp применяет up-миграции. steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает последние steps миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает версию схемы и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.pool == nil {
		return 0, 0, errNotInitialized
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()

	sql, args, err := psql.Select("COALESCE(MAX(version), 0)", "COUNT(*)").From(migrationsTable).ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build migration status query: %w", err)
	}

	var (
		version int64
		count   int
	)
	err = s.inMigrationTx(queryCtx, func(tx pgx.Tx) error {
		return tx.QueryRow(queryCtx, sql, args...).Scan(&version, &count)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// migrate выполняет шаги по одному, каждый в своей транзакции под advisory-блокировкой.
func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.pool == nil {
		return errNotInitialized
	}

	set, err := loadMigrationSet(migrationsFS)
	if err != nil {
		return err
	}

	var step migrationStep
	switch direction {
	case migrationUp:
		step = set.applyNext
	case migrationDown:
		step = set.revertLast
	default:
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}

	for done := 0; steps <= 0 || done < steps; done++ {
		var progressed bool
		err := s.inMigrationTx(ctx, func(tx pgx.Tx) error {
			var err error
			progressed, err = step(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
	return nil
}

func (s *Store) inMigrationTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := tx.Exec(lockCtx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

func (set *migrationSet) applyNext(ctx context.Context, tx pgx.Tx) (bool, error) {
	sql, args, err := psql.Select("version").From(migrationsTable).ToSql()
	if err != nil {
		return false, err
	}
	var versions []int64
	if err := pgxscan.Select(ctx, tx, &versions, sql, args...); err != nil {
		return false, fmt.Errorf("query applied migrations: %w", err)
	}

	for _, m := range set.ordered {
		if slices.Contains(versions, m.Version) {
			continue
		}
		if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
			return false, fmt.Errorf("execute up migration %s: %w", m, err)
		}
		record, args, err := psql.Insert(migrationsTable).Columns("version", "name").Values(m.Version, m.Name).ToSql()
		if err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, record, args...); err != nil {
			return false, fmt.Errorf("record up migration %s: %w", m, err)
		}
		return true, nil
	}
	return false, nil
}

func (set *migrationSet) revertLast(ctx context.Context, tx pgx.Tx) (bool, error) {
	sql, args, err := psql.Select("version").From(migrationsTable).OrderBy("version DESC").Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var version int64
	if err := pgxscan.Get(ctx, tx, &version, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("query last applied migration: %w", err)
	}

	m, ok := set.byVersion[version]
	if !ok {
		return false, fmt.Errorf("cannot rollback unknown migration version %d", version)
	}
	if _, err := tx.Exec(ctx, m.DownSQL); err != nil {
		return false, fmt.Errorf("execute down migration %s: %w", m, err)
	}
	forget, args, err := psql.Delete(migrationsTable).Where(sq.Eq{"version": m.Version}).ToSql()
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, forget, args...); err != nil {
		return false, fmt.Errorf("delete migration record %s: %w", m, err)
	}
	return true, nil
}

// parseMigrationFile разбирает имя вида 0001_name.up.sql.
func parseMigrationFile(base string) (int64, string, migrationDirection, error) {
	matches := migrationFilePattern.FindStringSubmatch(base)
	if len(matches) != 4 {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return version, matches[2], migrationDirection(matches[3]), nil
}

func loadMigrationSet(fsys fs.FS) (*migrationSet, error) {
	ordered, err := loadMigrationsFromFS(fsys)
	if err != nil {
		return nil, err
	}
	set := &migrationSet{ordered: ordered, byVersion: make(map[int64]migration, len(ordered))}
	for _, m := range ordered {
		set.byVersion[m.Version] = m
	}
	return set, nil
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	found := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		version, name, direction, err := parseMigrationFile(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := found[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			found[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}

		target := &m.UpSQL
		if direction == migrationDown {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(found))
	for _, m := range found {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return migrations, nil
}
