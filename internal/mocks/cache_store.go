package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/match-gateway/internal/cache"
)

// MockCacheStore wraps a real store and lets tests override single
// operations, typically to inject outages.
type MockCacheStore struct {
	cache.Store

	GetFn            func(ctx context.Context, key string) (cache.Value, bool, error)
	SetFn            func(ctx context.Context, key string, v cache.Value, ttl time.Duration) error
	SetIfAbsentFn    func(ctx context.Context, key string, v cache.Value, ttl time.Duration) (bool, error)
	CompareAndSwapFn func(ctx context.Context, key string, old, next cache.Value, ttl time.Duration) (bool, error)
	DeleteFn         func(ctx context.Context, key string) error
	SetAddFn         func(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error)
	SetMembersFn     func(ctx context.Context, key string) ([]string, error)

	// Err, when set, fails every operation that has no override.
	Err error

	mu      sync.Mutex
	setKeys []string
}

// NewMockCacheStore wraps an empty in-memory store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{Store: cache.NewMemoryStore()}
}

// Get implements cache.Store.
func (m *MockCacheStore) Get(ctx context.Context, key string) (cache.Value, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	if m.Err != nil {
		return cache.Value{}, false, m.Err
	}
	return m.Store.Get(ctx, key)
}

// Set implements cache.Store and records the key.
func (m *MockCacheStore) Set(ctx context.Context, key string, v cache.Value, ttl time.Duration) error {
	m.mu.Lock()
	m.setKeys = append(m.setKeys, key)
	m.mu.Unlock()

	if m.SetFn != nil {
		return m.SetFn(ctx, key, v, ttl)
	}
	if m.Err != nil {
		return m.Err
	}
	return m.Store.Set(ctx, key, v, ttl)
}

// SetIfAbsent implements cache.Store.
func (m *MockCacheStore) SetIfAbsent(ctx context.Context, key string, v cache.Value, ttl time.Duration) (bool, error) {
	if m.SetIfAbsentFn != nil {
		return m.SetIfAbsentFn(ctx, key, v, ttl)
	}
	if m.Err != nil {
		return false, m.Err
	}
	return m.Store.SetIfAbsent(ctx, key, v, ttl)
}

// CompareAndSwap implements cache.Store.
func (m *MockCacheStore) CompareAndSwap(ctx context.Context, key string, old, next cache.Value, ttl time.Duration) (bool, error) {
	if m.CompareAndSwapFn != nil {
		return m.CompareAndSwapFn(ctx, key, old, next, ttl)
	}
	if m.Err != nil {
		return false, m.Err
	}
	return m.Store.CompareAndSwap(ctx, key, old, next, ttl)
}

// Delete implements cache.Store.
func (m *MockCacheStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	if m.Err != nil {
		return m.Err
	}
	return m.Store.Delete(ctx, key)
}

// SetAdd implements cache.Store.
func (m *MockCacheStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	if m.SetAddFn != nil {
		return m.SetAddFn(ctx, key, ttl, members...)
	}
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Store.SetAdd(ctx, key, ttl, members...)
}

// SetMembers implements cache.Store.
func (m *MockCacheStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if m.SetMembersFn != nil {
		return m.SetMembersFn(ctx, key)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Store.SetMembers(ctx, key)
}

// SetKeys returns every key passed to Set, in order.
func (m *MockCacheStore) SetKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.setKeys...)
}
