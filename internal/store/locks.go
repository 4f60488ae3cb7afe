package store

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// nameLocks hands out one exclusive lock per secret name. Entries are
// reference counted and dropped once nobody holds or waits for them, so the
// table only grows with the number of names in flight.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

// acquire blocks until the lock for name is held or ctx is done.
func (n *nameLocks) acquire(ctx context.Context, name string) (func(), error) {
	n.mu.Lock()
	l, ok := n.locks[name]
	if !ok {
		l = &nameLock{sem: semaphore.NewWeighted(1)}
		n.locks[name] = l
	}
	l.refs++
	n.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		n.drop(name, l)
		return nil, err
	}
	return func() {
		l.sem.Release(1)
		n.drop(name, l)
	}, nil
}

func (n *nameLocks) drop(name string, l *nameLock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(n.locks, name)
	}
}

func (n *nameLocks) size() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.locks)
}
