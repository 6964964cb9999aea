package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/creditiq/core"
)

// MemoryStore 是内存实现的 Store，用于单实例部署和测试。
// 支持 TTL（过期时间），过期数据由后台协程定期清理，进程重启后数据丢失。
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]entry
	clean *time.Ticker
	done  chan struct{}
	once  sync.Once
}

type entry struct {
	value    []byte
	expireAt time.Time // 零值表示不过期
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:  make(map[string]entry),
		clean: time.NewTicker(10 * time.Second),
		done:  make(chan struct{}),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len 返回当前条目数（含未清理的过期条目）
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.done:
			return
		case <-m.clean.C:
			m.evictExpired(time.Now())
		}
	}
}

func (m *MemoryStore) evictExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
		}
	}
}

var _ core.Store = (*MemoryStore)(nil)
