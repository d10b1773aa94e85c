// Package cache provides the shared effective-permission cache. Resolution
// is cheap but runs on every authorization check, so resolved sets are kept
// in Redis with a short TTL and invalidated explicitly when grants or
// overrides change.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// PermissionCache is the cache the resolver consults before touching the
// store. Implementations must be safe for concurrent use. A miss is never an
// error; the cache is strictly best-effort.
type PermissionCache interface {
	// Get returns the cached effective set for a user and whether it was present
	Get(ctx context.Context, userID int64) ([]string, bool)

	// Set stores the effective set for a user
	Set(ctx context.Context, userID int64, codes []string)

	// Invalidate drops the cached sets for the given users
	Invalidate(ctx context.Context, userIDs ...int64)

	// InvalidateAll drops every cached set
	InvalidateAll(ctx context.Context)
}

// DefaultTTL bounds staleness after an administrative change that escaped
// explicit invalidation. Permission changes are rare, so stale-by-one reads
// inside this window are acceptable.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "backoffice:perms:"

// RedisPermissionCache implements PermissionCache on a shared Redis instance
type RedisPermissionCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logrus.Logger
}

// NewRedisPermissionCache creates a cache with the default TTL
func NewRedisPermissionCache(client *redis.Client, logger *logrus.Logger) *RedisPermissionCache {
	return &RedisPermissionCache{
		Client: client,
		TTL:    DefaultTTL,
		Logger: logger,
	}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// Get returns the cached effective set for a user and whether it was present
func (c *RedisPermissionCache) Get(ctx context.Context, userID int64) ([]string, bool) {
	cached, err := c.Client.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.Logger.WithError(err).Warn("Permission cache read failed")
		}
		return nil, false
	}

	var codes []string
	if err := json.Unmarshal([]byte(cached), &codes); err != nil {
		c.Logger.WithError(err).Warn("Permission cache entry malformed, dropping")
		c.Client.Del(ctx, cacheKey(userID))
		return nil, false
	}

	return codes, true
}

// Set stores the effective set for a user
func (c *RedisPermissionCache) Set(ctx context.Context, userID int64, codes []string) {
	data, err := json.Marshal(codes)
	if err != nil {
		c.Logger.WithError(err).Warn("Failed to marshal permission set for cache")
		return
	}

	if err := c.Client.Set(ctx, cacheKey(userID), data, c.TTL).Err(); err != nil {
		c.Logger.WithError(err).Warn("Permission cache write failed")
	}
}

// Invalidate drops the cached sets for the given users
func (c *RedisPermissionCache) Invalidate(ctx context.Context, userIDs ...int64) {
	if len(userIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		keys = append(keys, cacheKey(userID))
	}

	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		c.Logger.WithError(err).Warn("Permission cache invalidation failed")
		return
	}

	c.Logger.WithField("user_count", len(userIDs)).Debug("Invalidated permission cache entries")
}

// InvalidateAll drops every cached set. Used after catalog mutations, which
// can affect any user's effective set.
func (c *RedisPermissionCache) InvalidateAll(ctx context.Context) {
	iter := c.Client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.Logger.WithError(err).Warn("Permission cache scan failed")
		return
	}

	if len(keys) > 0 {
		if err := c.Client.Del(ctx, keys...).Err(); err != nil {
			c.Logger.WithError(err).Warn("Permission cache flush failed")
			return
		}
	}

	c.Logger.WithField("key_count", len(keys)).Debug("Flushed permission cache")
}
