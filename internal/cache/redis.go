package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/match-gateway/internal/config"
)

// casScript swaps KEYS[1] from ARGV[1] to ARGV[2] atomically. ARGV[3] is the
// TTL in milliseconds, 0 for none.
var casScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore is a Store on a Redis server. Values are stored as tagged
// strings and sets as native Redis sets.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
	store := &RedisStore{client: client}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisErr(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", ErrUnavailable, op, err)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Value, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, redisErr("get", err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, v Value, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, v.Encode(), positive(ttl)).Err(); err != nil {
		return redisErr("set", err)
	}
	return nil
}

// SetIfAbsent implements Store.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, v Value, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, v.Encode(), positive(ttl)).Result()
	if err != nil {
		return false, redisErr("setnx", err)
	}
	return ok, nil
}

// CompareAndSwap implements Store.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old, next Value, ttl time.Duration) (bool, error) {
	n, err := casScript.Run(ctx, s.client, []string{key},
		old.Encode(), next.Encode(), positive(ttl).Milliseconds()).Int()
	if err != nil {
		return false, redisErr("cas", err)
	}
	return n == 1, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return redisErr("del", err)
	}
	return nil
}

// SetAdd implements Store.
func (s *RedisStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}

	var added *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, args...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, redisErr("sadd", err)
	}
	return int(added.Val()), nil
}

// SetRemove implements Store.
func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.SRem(ctx, key, args...).Result()
	if err != nil {
		return 0, redisErr("srem", err)
	}
	return int(n), nil
}

// SetMembers implements Store.
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, redisErr("smembers", err)
	}
	sort.Strings(members)
	return members, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return redisErr("ping", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func positive(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
