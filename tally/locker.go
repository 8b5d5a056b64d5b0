package tally

import (
	"context"
	"sync"
)

// Locker 串行化同一投票上的写操作
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// LocalLocker 进程内的按键互斥锁，ctx结束时放弃等待
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	lk := l.acquireRef(key)
	defer l.releaseRef(key, lk)

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lk.ch }()

	return fn()
}

func (l *LocalLocker) acquireRef(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *LocalLocker) releaseRef(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
