package memory

import (
	"context"
	"sync"
)

// keyedLocks хранит мьютексы по ключу с поддержкой отмены через контекст.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]*lockSlot)}
}

func (l *keyedLocks) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(key, slot)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *keyedLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		return
	}
	<-slot.ch
	l.drop(key, slot)
}

func (l *keyedLocks) drop(key string, slot *lockSlot) {
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
