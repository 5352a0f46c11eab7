package store

import (
	"context"
	"sync"
)

// accountLocks hands out one lock per user ID. Each lock is a one-slot
// semaphore so a waiter can give up when its context ends.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]chan struct{})}
}

// lock acquires the user's lock and returns its release function. It
// returns ctx.Err() if ctx is done before the lock is free.
func (l *accountLocks) lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[userID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[userID] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
