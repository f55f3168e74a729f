// Package lock 提供按 key 串行化的互斥锁，用于保证同一复习会话的操作依次执行。
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout 表示在等待时限内未能拿到锁。
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// Locker 对 key 加锁，返回的 unlock 必须恰好调用一次。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker 是单进程内的实现，用于测试与 sqlite 本地开发。
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLocker 创建一个进程内的 Locker。
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

func (l *MemoryLocker) acquireEntry(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) releaseEntry(key string, e *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.releaseEntry(key, e)
		})
	}, nil
}
