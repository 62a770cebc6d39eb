// Package cache keeps a read-through copy of the current entitlement in Redis.
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

	"github.com/felixgeelhaar/mylife/internal/billing/domain"
)

const (
	// DefaultKey holds the serialized entitlement.
	DefaultKey = "mylife:entitlement:current"

	// DefaultVersionKey counts invalidations. It never expires.
	DefaultVersionKey = "mylife:entitlement:version"
)

// fillScript sets KEYS[1] to ARGV[2] for ARGV[3] milliseconds when KEYS[2]
// still holds version ARGV[1]. A missing version counts as 0.
const fillScript = `
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Connect builds a client from a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type cachedEntitlement struct {
	Token       string             `json:"token"`
	Entitlement domain.Entitlement `json:"entitlement"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// RedisEntitlementCache implements domain.EntitlementCache.
type RedisEntitlementCache struct {
	client     redisClient
	key        string
	versionKey string
	ttl        time.Duration
}

// NewRedisEntitlementCache creates a cache whose entries expire after ttl.
func NewRedisEntitlementCache(client redisClient, ttl time.Duration) *RedisEntitlementCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisEntitlementCache{client: client, key: DefaultKey, versionKey: DefaultVersionKey, ttl: ttl}
}

// Get returns the cached entitlement; a miss is (nil, false, nil).
func (c *RedisEntitlementCache) Get(ctx context.Context) (*domain.StoredEntitlement, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var cached cachedEntitlement
	if err := json.Unmarshal(raw, &cached); err != nil {
		// A corrupt entry is a miss; the next Set replaces it.
		return nil, false, nil
	}
	return &domain.StoredEntitlement{
		Token:       cached.Token,
		Entitlement: cached.Entitlement,
		UpdatedAt:   cached.UpdatedAt,
	}, true, nil
}

// Version returns the invalidation count.
func (c *RedisEntitlementCache) Version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

// Set stores stored with the cache TTL unless the cache was invalidated
// after version was read.
func (c *RedisEntitlementCache) Set(ctx context.Context, stored domain.StoredEntitlement, version int64) error {
	raw, err := json.Marshal(cachedEntitlement{
		Token:       stored.Token,
		Entitlement: stored.Entitlement,
		UpdatedAt:   stored.UpdatedAt,
	})
	if err != nil {
		return err
	}
	err = c.client.Eval(ctx, fillScript, []string{c.key, c.versionKey},
		strconv.FormatInt(version, 10), string(raw), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis fill: %w", err)
	}
	return nil
}

// Invalidate advances the version and drops the cached entry.
func (c *RedisEntitlementCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.versionKey).Err(); err != nil {
		return fmt.Errorf("redis incr version: %w", err)
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
