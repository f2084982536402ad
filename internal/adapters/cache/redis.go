package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homedash/homedash/internal/domain"
	"github.com/homedash/homedash/internal/ports"
)

// Connect opens a Redis client from either a redis:// URL or a bare address.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisCache is the shared-store KeyValueCache. Keys are namespaced so one
// Redis instance can back several cache instances with different TTLs.
type RedisCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisCache creates a cache scoped to the given namespace prefix.
func NewRedisCache(client *redis.Client, namespace string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, namespace: "homedash:cache:" + namespace + ":", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.namespace+key, value, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.namespace+key).Err()
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.deleteByPattern(ctx, c.namespace+"*")
}

func (c *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	return c.deleteByPattern(ctx, c.namespace+prefix+"*")
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 256 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// RedisPendingAuthStore keeps OAuth login state in Redis so a login survives
// process restarts and multi-instance deployments.
type RedisPendingAuthStore struct {
	client *redis.Client
}

func NewRedisPendingAuthStore(client *redis.Client) *RedisPendingAuthStore {
	return &RedisPendingAuthStore{client: client}
}

func pendingKey(state string) string { return "homedash:auth:pending:" + state }

func (s *RedisPendingAuthStore) Put(ctx context.Context, pending domain.PendingAuthorization, ttl time.Duration) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, pendingKey(pending.State), raw, ttl).Err()
}

// Consume relies on GETDEL so exactly one concurrent callback observes the
// record.
func (s *RedisPendingAuthStore) Consume(ctx context.Context, state string) (*domain.PendingAuthorization, error) {
	raw, err := s.client.GetDel(ctx, pendingKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pending domain.PendingAuthorization
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, err
	}
	if pending.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return &pending, nil
}

// RedisThrottle backs the login throttle with a failure-timestamp sorted set
// per identifier plus a separate block key whose TTL is the block timer.
type RedisThrottle struct {
	client    *redis.Client
	threshold int
	window    time.Duration
	blockFor  time.Duration
}

func NewRedisThrottle(client *redis.Client, threshold int, window, blockFor time.Duration) *RedisThrottle {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if blockFor <= 0 {
		blockFor = 15 * time.Minute
	}
	return &RedisThrottle{client: client, threshold: threshold, window: window, blockFor: blockFor}
}

func throttleFailuresKey(id string) string { return "homedash:auth:throttle:" + id }
func throttleBlockKey(id string) string    { return "homedash:auth:block:" + id }

func (t *RedisThrottle) Check(ctx context.Context, identifier string) (ports.ThrottleDecision, error) {
	blockTTL, err := t.client.PTTL(ctx, throttleBlockKey(identifier)).Result()
	if err != nil {
		return ports.ThrottleDecision{}, err
	}
	if blockTTL > 0 {
		return ports.ThrottleDecision{Allowed: false, RetryAfter: blockTTL}, nil
	}

	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-t.window).UnixMilli(), 10)
	if err := t.client.ZRemRangeByScore(ctx, throttleFailuresKey(identifier), "-inf", cutoff).Err(); err != nil {
		return ports.ThrottleDecision{}, err
	}
	count, err := t.client.ZCard(ctx, throttleFailuresKey(identifier)).Result()
	if err != nil {
		return ports.ThrottleDecision{}, err
	}
	if int(count) >= t.threshold {
		oldest, err := t.client.ZRangeWithScores(ctx, throttleFailuresKey(identifier), 0, 0).Result()
		if err != nil {
			return ports.ThrottleDecision{}, err
		}
		retry := t.window
		if len(oldest) == 1 {
			oldestAt := time.UnixMilli(int64(oldest[0].Score))
			retry = oldestAt.Add(t.window).Sub(now)
			if retry < 0 {
				retry = 0
			}
		}
		return ports.ThrottleDecision{Allowed: false, RetryAfter: retry}, nil
	}
	return ports.ThrottleDecision{Allowed: true}, nil
}

func (t *RedisThrottle) RecordFailure(ctx context.Context, identifier string, now time.Time) error {
	key := throttleFailuresKey(identifier)
	member := strconv.FormatInt(now.UnixNano(), 10)
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		p.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-t.window).UnixMilli(), 10))
		p.Expire(ctx, key, t.window+time.Minute)
		return nil
	})
	if err != nil {
		return err
	}
	count, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if int(count) >= t.threshold {
		// The block key's own TTL is the block timer; window math does not
		// shorten it.
		return t.client.Set(ctx, throttleBlockKey(identifier), 1, t.blockFor).Err()
	}
	return nil
}

func (t *RedisThrottle) RecordSuccess(ctx context.Context, identifier string) error {
	return t.client.Del(ctx, throttleFailuresKey(identifier), throttleBlockKey(identifier)).Err()
}
