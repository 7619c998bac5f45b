package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (m *memoryItem) expired() bool {
	return !m.expireAt.IsZero() && time.Now().After(m.expireAt)
}

// MemoryCache implements Service with in-process storage. It backs the
// pipeline when Redis is disabled.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
}

// NewMemoryCache creates an in-memory cache holding up to maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &MemoryCache{data: make(map[string]*memoryItem), maxSize: maxSize}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.evictIfFull()
	mc.data[key] = &memoryItem{value: b, expireAt: expireAt(expiration)}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.data[key]
	if ok && item.expired() {
		delete(mc.data, key)
		ok = false
	}
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.value, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.data[key]; ok && !item.expired() {
		return false, nil
	}
	mc.evictIfFull()
	mc.data[key] = &memoryItem{value: b, expireAt: expireAt(expiration)}
	return true, nil
}

func (mc *MemoryCache) Close() error { return nil }

// evictIfFull drops expired entries first, then an arbitrary one. Caller
// holds the lock.
func (mc *MemoryCache) evictIfFull() {
	if len(mc.data) < mc.maxSize {
		return
	}
	for k, v := range mc.data {
		if v.expired() {
			delete(mc.data, k)
		}
	}
	for k := range mc.data {
		if len(mc.data) < mc.maxSize {
			break
		}
		delete(mc.data, k)
	}
}

func expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
