package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), config.CacheConfig{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), config.CacheConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestIdleTimeoutFollowsBackend(t *testing.T) {
	t.Parallel()

	cfg := config.CacheConfig{
		Redis:    config.RedisConfig{DialTimeout: 2 * time.Second},
		DynamoDB: config.DynamoDBConfig{ConnectTimeout: 3 * time.Second},
		Postgres: config.PostgresConfig{ConnectTimeout: 4 * time.Second},
	}
	for backend, want := range map[string]time.Duration{
		BackendMemory:   0,
		BackendRedis:    2 * time.Second,
		BackendDynamoDB: 3 * time.Second,
		BackendPostgres: 4 * time.Second,
	} {
		cfg.Backend = backend
		assert.Equal(t, want, idleTimeout(cfg), backend)
	}
}

func TestPooledStoreDelegatesToHandle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	res := NewResource(config.CacheConfig{Backend: BackendMemory}, logger.Discard(), nil)
	assert.Equal(t, ResourceName, res.Name())
	assert.False(t, res.Initialized())

	s := Pooled(res)
	require.NoError(t, s.Set(ctx, "k", Scalar("v"), time.Minute))
	assert.True(t, res.Initialized(), "first use initialises the handle")

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v.String())

	assert.True(t, res.Probe(ctx))
	assert.False(t, res.IsStale(time.Now().Add(24*time.Hour)), "memory handles never report stale")

	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPooledStoreContract(t *testing.T) {
	t.Parallel()

	res := NewResource(config.CacheConfig{Backend: BackendMemory}, logger.Discard(), nil)
	runStoreContract(t, Pooled(res), "")
}
