package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can tell them apart from
// a plain miss.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the contract every cache backend implements. A TTL of zero or
// less means the entry never expires.
type Store interface {
	// Get returns the value under key. A missing or expired key reports
	// ok=false with a nil error.
	Get(ctx context.Context, key string) (v Value, ok bool, err error)
	// Set writes key unconditionally.
	Set(ctx context.Context, key string, v Value, ttl time.Duration) error
	// SetIfAbsent writes key only if it is missing or expired and reports
	// whether the write happened.
	SetIfAbsent(ctx context.Context, key string, v Value, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces key with next only if it currently holds old,
	// and reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, next Value, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// SetAdd adds members to the set at key, refreshes its TTL and returns
	// how many members were new.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error)
	// SetRemove removes members and returns how many were present.
	SetRemove(ctx context.Context, key string, members ...string) (int, error)
	// SetMembers returns the members of the set at key, sorted. A missing
	// set is empty.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// Ping is a cheap liveness round-trip.
	Ping(ctx context.Context) error
	// Close releases the backend client.
	Close() error
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}
