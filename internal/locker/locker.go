// Package locker serializes the read-modify-write of a conversation per phone number.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTimeout bounds how long Lock waits for a held key.
const DefaultTimeout = 5 * time.Second

// ErrLockTimeout is returned when a key could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for conversation lock")

// Locker grants exclusive access to a key. The returned function releases it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are removed once no goroutine holds or waits on them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	timeout time.Duration
}

// NewLocalLocker creates a LocalLocker. A timeout <= 0 selects DefaultTimeout.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalLocker{entries: make(map[string]*localEntry), timeout: timeout}
}

// Lock blocks until key is free, the timeout elapses, or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-timer.C:
		l.release(key, e, false)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// size reports the number of live entries.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
