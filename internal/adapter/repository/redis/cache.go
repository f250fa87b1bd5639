package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheNamespace prefixes every key the read-through loan cache writes.
const DefaultCacheNamespace = "golend:cache:"

// Cache implements usecase.Cache on a Redis keyspace. Loan metadata never
// changes after creation, so entries are only dropped by TTL or Delete.
type Cache struct {
	client    redis.Cmdable
	namespace string
}

// NewCache returns a Cache writing under DefaultCacheNamespace.
func NewCache(client redis.Cmdable) *Cache {
	return NewCacheWithNamespace(client, DefaultCacheNamespace)
}

// NewCacheWithNamespace lets several deployments share one Redis database.
func NewCacheWithNamespace(client redis.Cmdable, namespace string) *Cache {
	return &Cache{client: client, namespace: namespace}
}

func (c *Cache) key(k string) string { return c.namespace + k }

// Get returns (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return raw, nil
}

// Set stores value for ttl; zero keeps it until deleted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
