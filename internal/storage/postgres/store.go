// Package postgres, реализация хранилища поверх PostgreSQL (pgx).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxConns        = 25
	defaultMinConns        = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var errNotInitialized = errors.New("postgres store is not initialized")

// Pool: подмножество pgxpool.Pool, нужное хранилищу. Реализуется и pgxmock.
type Pool interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store открывает единицы работы как транзакции READ COMMITTED.
type Store struct {
	pool Pool
}

var _ storage.Factory = (*Store)(nil)

// Open создаёт пул подключений и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	cfg.MaxConnLifetime = defaultConnMaxLifetime
	cfg.MaxConnIdleTime = defaultConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

// New оборачивает готовый пул.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// Begin открывает транзакцию и возвращает единицу работы поверх неё.
func (s *Store) Begin(ctx context.Context) (*storage.UnitOfWork, error) {
	if s == nil || s.pool == nil {
		return nil, errNotInitialized
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	return storage.NewUnitOfWork(&txSession{tx: tx}), nil
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.pool.Ping(pingCtx)
}

// Close закрывает пул.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
