package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DigestCache memoizes (package, version) → image digest lookups
// against the control-plane's package index, layering an optional
// Redis cache in front of a slower lookup: absent a configured URL,
// the worker runs without one and every resolvePackage call hits the
// API directly.
type DigestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDigestCache connects to addr; pass an empty addr to get a nil
// *DigestCache, which every method below treats as a cache miss.
func NewDigestCache(addr, password string, db, poolSize int, ttl time.Duration) *DigestCache {
	if addr == "" {
		return nil
	}
	return &DigestCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db, PoolSize: poolSize}),
		ttl:    ttl,
	}
}

func cacheKey(pkg, version string) string {
	return "brane:digest:" + pkg + ":" + version
}

// Get returns the cached image reference for (pkg, version), or ok=false
// on a miss or when the cache is unavailable.
func (c *DigestCache) Get(ctx context.Context, pkg, version string) (value string, ok bool) {
	if c == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, cacheKey(pkg, version)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// Set stores value (a serialized "image|digest" pair) for (pkg, version).
// Failures are swallowed: the cache is an optimization, never load-bearing.
func (c *DigestCache) Set(ctx context.Context, pkg, version, value string) {
	if c == nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(pkg, version), value, c.ttl).Err()
}

func (c *DigestCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
