package cache

import (
	"context"
	"sync"
)

// MemoryCache 进程内缓存，serve 模式未配置 Redis 时使用
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	hits    int64
	misses  int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return e, ok, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, entry Entry) error {
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Backend: "memory", Keys: int64(len(m.entries)), Hits: m.hits, Misses: m.misses}, nil
}

func (m *MemoryCache) Close() error {
	return nil
}
