package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/storage"
)

// session обслуживает одну единицу работы поверх Store.
type session struct {
	store *Store
	held  []string
	done  bool
}

var _ storage.Driver = (*session)(nil)

func (s *session) Select(ctx context.Context, t *storage.Table, q storage.Query, dst any) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	return s.store.selectRows(t, q, dst)
}

func (s *session) Count(ctx context.Context, t *storage.Table, f storage.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	return s.store.countRows(t, f)
}

func (s *session) Lock(ctx context.Context, key string) error {
	for _, k := range s.held {
		if k == key {
			return nil
		}
	}
	if err := s.store.locks.acquire(ctx, key); err != nil {
		return unavailable(err)
	}
	s.held = append(s.held, key)
	return nil
}

func (s *session) Apply(ctx context.Context, changes []storage.Change) error {
	defer s.release()
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	return s.store.apply(changes)
}

func (s *session) Release(context.Context) error {
	s.release()
	return nil
}

func (s *session) release() {
	if s.done {
		return
	}
	s.done = true
	for _, key := range s.held {
		s.store.locks.release(key)
	}
	s.held = nil
}
