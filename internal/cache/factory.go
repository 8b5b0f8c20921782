package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/pool"
)

// ResourceName is the pool registry name of the cache handle.
const ResourceName = "cache"

// Backend names accepted by cache.backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case BackendDynamoDB:
		return NewDynamoDBStore(ctx, cfg.DynamoDB)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// idleTimeout is how long the cache handle may sit unused before IsStale
// reports it. The probe loop keeps idle handles warm rather than replacing
// them; the in-memory store never reports stale since replacing it would
// drop its contents.
func idleTimeout(cfg config.CacheConfig) time.Duration {
	switch cfg.Backend {
	case BackendRedis:
		return cfg.Redis.DialTimeout
	case BackendDynamoDB:
		return cfg.DynamoDB.ConnectTimeout
	case BackendPostgres:
		return cfg.Postgres.ConnectTimeout
	default:
		return 0
	}
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// NewResource wraps the configured backend in a pooled, self-healing handle.
// Nothing connects until the handle is first used or initialised.
func NewResource(cfg config.CacheConfig, log *slog.Logger, onReinit func(string)) *pool.Resource[Store] {
	return pool.NewResource(pool.ResourceOptions[Store]{
		Name:        ResourceName,
		IdleTimeout: idleTimeout(cfg),
		Open: func(ctx context.Context) (Store, error) {
			return Open(ctx, cfg)
		},
		Probe: func(ctx context.Context, s Store) error {
			if err := s.Ping(ctx); err != nil {
				return err
			}
			if p, ok := s.(purger); ok {
				if n, err := p.Purge(ctx); err != nil {
					log.Warn("failed to purge expired cache rows", "error", err)
				} else if n > 0 {
					log.Debug("purged expired cache rows", "rows", n)
				}
			}
			return nil
		},
		Close: func(s Store) error {
			return s.Close()
		},
		Logger:   log,
		OnReinit: onReinit,
	})
}

// pooledStore resolves the current backend from the pool handle on every
// call, so a probe that replaced a dead connection is picked up without
// restarting callers.
type pooledStore struct {
	res *pool.Resource[Store]
}

// Pooled returns a Store that delegates to the handle's current backend.
func Pooled(res *pool.Resource[Store]) Store {
	return &pooledStore{res: res}
}

func (p *pooledStore) store(ctx context.Context) (Store, error) {
	s, err := p.res.Access(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (p *pooledStore) Get(ctx context.Context, key string) (Value, bool, error) {
	s, err := p.store(ctx)
	if err != nil {
		return Value{}, false, err
	}
	return s.Get(ctx, key)
}

func (p *pooledStore) Set(ctx context.Context, key string, v Value, ttl time.Duration) error {
	s, err := p.store(ctx)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, v, ttl)
}

func (p *pooledStore) SetIfAbsent(ctx context.Context, key string, v Value, ttl time.Duration) (bool, error) {
	s, err := p.store(ctx)
	if err != nil {
		return false, err
	}
	return s.SetIfAbsent(ctx, key, v, ttl)
}

func (p *pooledStore) CompareAndSwap(ctx context.Context, key string, old, next Value, ttl time.Duration) (bool, error) {
	s, err := p.store(ctx)
	if err != nil {
		return false, err
	}
	return s.CompareAndSwap(ctx, key, old, next, ttl)
}

func (p *pooledStore) Delete(ctx context.Context, key string) error {
	s, err := p.store(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, key)
}

func (p *pooledStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	s, err := p.store(ctx)
	if err != nil {
		return 0, err
	}
	return s.SetAdd(ctx, key, ttl, members...)
}

func (p *pooledStore) SetRemove(ctx context.Context, key string, members ...string) (int, error) {
	s, err := p.store(ctx)
	if err != nil {
		return 0, err
	}
	return s.SetRemove(ctx, key, members...)
}

func (p *pooledStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	s, err := p.store(ctx)
	if err != nil {
		return nil, err
	}
	return s.SetMembers(ctx, key)
}

func (p *pooledStore) Ping(ctx context.Context) error {
	s, err := p.store(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close closes the pool handle, not just the current backend.
func (p *pooledStore) Close() error {
	return p.res.Close()
}
