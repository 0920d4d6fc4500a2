package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrEmptyKey is returned when Acquire is called with an empty key.
	ErrEmptyKey = errors.New("lock: key is required")

	// ErrNotAcquired is returned when a lock could not be obtained within
	// the context deadline.
	ErrNotAcquired = errors.New("lock: not acquired")
)

// KeyedLocker serializes work per key. Acquire blocks until the key's lock
// is held or ctx is done, and returns a release function the caller must
// invoke exactly once.
type KeyedLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker is an in-process KeyedLocker. Lock entries are reference
// counted and removed once the last waiter releases, so the key space can
// grow without leaking.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{} // buffered(1); holding the token means holding the lock
	refs int
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*refLock)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	rl, ok := l.locks[key]
	if !ok {
		rl = &refLock{ch: make(chan struct{}, 1)}
		rl.ch <- struct{}{}
		l.locks[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case <-rl.ch:
		var once sync.Once
		return func() {
			once.Do(func() {
				rl.ch <- struct{}{}
				l.unref(key, rl)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, rl)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (l *MemoryLocker) unref(key string, rl *refLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, key)
	}
}
