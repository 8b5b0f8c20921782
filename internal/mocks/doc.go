// Package mocks provides shared test doubles.
//
// MockCacheStore wraps the in-memory cache store and lets a test override
// any single operation through a function field:
//
//	store := mocks.NewMockCacheStore()
//	store.SetFn = func(ctx context.Context, key string, v cache.Value, ttl time.Duration) error {
//	    return errors.New("cache down")
//	}
//
// FakeBackend is an httptest server that speaks the backend envelope, used
// as the auth, match and payment services in service and router tests.
package mocks
