package cache

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed JSON cache with tag invalidation. Entries may be
// associated with tags; invalidating a tag drops every entry carrying it.
// A nil *Cache is a valid no-op cache, so callers never branch on Redis
// availability.
type Cache struct {
	client  *redis.Client
	prefix  string
	logger  *slog.Logger
	timeout time.Duration
}

// New connects to Redis and returns a Cache. An empty addr yields nil, the
// no-op cache.
func New(addr, password string, db int, prefix string, logger *slog.Logger) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Cache{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		timeout: 250 * time.Millisecond,
	}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Close()
}

func (c *Cache) key(name string) string { return c.prefix + ":" + name }
func (c *Cache) tag(name string) string { return c.prefix + ":tag:" + name }

// Get unmarshals a cached entry into dest. The bool reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.client.Get(opCtx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		c.logError("get", err)
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value as JSON under key with a TTL, registering it under tags.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	full := c.key(key)
	if err := c.client.Set(opCtx, full, data, ttl).Err(); err != nil {
		c.logError("set", err)
		return nil
	}
	for _, t := range tags {
		if err := c.client.SAdd(opCtx, c.tag(t), full).Err(); err != nil {
			c.logError("sadd", err)
		}
	}
	return nil
}

// InvalidateTags removes every entry registered under the given tags.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) {
	if c == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for _, t := range tags {
		tagKey := c.tag(t)
		members, err := c.client.SMembers(opCtx, tagKey).Result()
		if err != nil {
			c.logError("smembers", err)
			continue
		}
		if len(members) > 0 {
			if err := c.client.Del(opCtx, members...).Err(); err != nil {
				c.logError("del", err)
			}
		}
		if err := c.client.Del(opCtx, tagKey).Err(); err != nil {
			c.logError("del", err)
		}
	}
}

func (c *Cache) logError(op string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("cache operation failed", "op", op, "error", err)
}
