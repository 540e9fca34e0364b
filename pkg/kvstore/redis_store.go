package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connector opens a Redis client. It is called at most once per successful connection.
type Connector func(ctx context.Context) (*redis.Client, func(), error)

// NewConnector returns a Connector that dials with cache.New.
func NewConnector(cfg cache.Config) Connector {
	return func(ctx context.Context) (*redis.Client, func(), error) {
		return cache.New(ctx, cfg)
	}
}

// RedisStore implements Store on top of go-redis.
// The client is created lazily on first use and cached for the lifetime of the store.
// A failed connect is not cached, so the next operation tries again.
type RedisStore struct {
	logger  *zap.Logger
	connect Connector

	mu     sync.Mutex
	client *redis.Client
	closer func()
}

// NewRedisStore creates a store that connects on first use.
func NewRedisStore(logger *zap.Logger, connect Connector) *RedisStore {
	return &RedisStore{logger: logger, connect: connect}
}

// NewRedisStoreFromClient wraps an already connected client. Close does not close it.
func NewRedisStoreFromClient(logger *zap.Logger, client *redis.Client) *RedisStore {
	return &RedisStore{logger: logger, client: client, closer: func() {}}
}

// Connect returns the cached client, creating it on the first call.
func (s *RedisStore) Connect(ctx context.Context) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	if s.connect == nil {
		return nil, fmt.Errorf("%w: no connector configured", pkg.ErrStoreUnavailable)
	}
	client, closer, err := s.connect(ctx)
	if err != nil {
		s.logger.Error("kv_store_connect_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", pkg.ErrStoreUnavailable, err)
	}
	s.client = client
	s.closer = closer
	s.logger.Info("kv_store_connected")
	return client, nil
}

// Close releases the client if one was created.
func (s *RedisStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		s.closer()
	}
	s.client = nil
	s.closer = nil
}

func (s *RedisStore) ListPush(ctx context.Context, key, value string) error {
	c, err := s.Connect(ctx)
	if err != nil {
		return err
	}
	return unavailable("rpush", c.RPush(ctx, key, value).Err())
}

func (s *RedisStore) ListPop(ctx context.Context, key string) (string, bool, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("lpop", err)
	}
	return v, true, nil
}

func (s *RedisStore) ListLength(ctx context.Context, key string) (int64, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.LLen(ctx, key).Result()
	return n, unavailable("llen", err)
}

func (s *RedisStore) ListRemove(ctx context.Context, key, value string) (int64, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.LRem(ctx, key, 0, value).Result()
	return n, unavailable("lrem", err)
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) (bool, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return false, err
	}
	n, err := c.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, unavailable("sadd", err)
	}
	return n == 1, nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) error {
	c, err := s.Connect(ctx)
	if err != nil {
		return err
	}
	return unavailable("srem", c.SRem(ctx, key, member).Err())
}

func (s *RedisStore) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return false, err
	}
	ok, err := c.SIsMember(ctx, key, member).Result()
	return ok, unavailable("sismember", err)
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return nil, err
	}
	members, err := c.SMembers(ctx, key).Result()
	return members, unavailable("smembers", err)
}

func (s *RedisStore) SetSize(ctx context.Context, key string) (int64, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.SCard(ctx, key).Result()
	return n, unavailable("scard", err)
}

func (s *RedisStore) GetKey(ctx context.Context, key string) (string, bool, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return "", false, err
	}
	v, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return v, true, nil
}

func (s *RedisStore) SetKey(ctx context.Context, key, value string) error {
	c, err := s.Connect(ctx)
	if err != nil {
		return err
	}
	return unavailable("set", c.Set(ctx, key, value, 0).Err())
}

func (s *RedisStore) DeleteKey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c, err := s.Connect(ctx)
	if err != nil {
		return err
	}
	return unavailable("del", c.Del(ctx, keys...).Err())
}

func (s *RedisStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c, err := s.Connect(ctx)
	if err != nil {
		return 0, err
	}
	pipe := c.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, unavailable("incr", err)
	}
	return incr.Val(), nil
}

// unavailable tags a redis error as ErrStoreUnavailable, keeping the command name for logs.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", pkg.ErrStoreUnavailable, op, err)
}
