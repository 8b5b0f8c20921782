package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value   Value
	members map[string]struct{}
	expires time.Time
}

// MemoryStore keeps entries in process memory. Expired entries are dropped
// lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// live returns the unexpired entry under key. Callers hold s.mu.
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if expired(e.expires, s.now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.members != nil {
		return Value{}, false, nil
	}
	return e.value, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, v Value, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{value: v, expires: expiry(s.now(), ttl)}
	return nil
}

// SetIfAbsent implements Store.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, v Value, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) != nil {
		return false, nil
	}
	s.entries[key] = &memoryEntry{value: v, expires: expiry(s.now(), ttl)}
	return true, nil
}

// CompareAndSwap implements Store.
func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, old, next Value, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.members != nil || !e.value.Equal(old) {
		return false, nil
	}
	s.entries[key] = &memoryEntry{value: next, expires: expiry(s.now(), ttl)}
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// SetAdd implements Store.
func (s *MemoryStore) SetAdd(_ context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.members == nil {
		e = &memoryEntry{members: make(map[string]struct{}, len(members))}
		s.entries[key] = e
	}
	added := 0
	for _, m := range members {
		if _, ok := e.members[m]; !ok {
			e.members[m] = struct{}{}
			added++
		}
	}
	e.expires = expiry(s.now(), ttl)
	return added, nil
}

// SetRemove implements Store.
func (s *MemoryStore) SetRemove(_ context.Context, key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.members == nil {
		return 0, nil
	}
	removed := 0
	for _, m := range members {
		if _, ok := e.members[m]; ok {
			delete(e.members, m)
			removed++
		}
	}
	if len(e.members) == 0 {
		delete(s.entries, key)
	}
	return removed, nil
}

// SetMembers implements Store.
func (s *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.members == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.members))
	for m := range e.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if s.live(key) != nil {
			n++
		}
	}
	return n
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
