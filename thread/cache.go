package thread

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheIndexKey is the single Redis key the index is cached under; the
// cache always holds the full listing rather than one key per thread,
// since ListThreads itself is always a full scan.
const cacheIndexKey = "zdx:threads:index"

// Cache layers a Redis-backed index cache over the authoritative JSONL
// thread files, so "list recent threads" doesn't re-read and
// re-decode every thread file on every invocation.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache connects to addr (e.g. "localhost:6379") for the thread
// index cache. The connection is lazy: redis.NewClient never dials
// until the first command, so a down or misconfigured Redis only
// surfaces as an error from ListThreads, not from NewCache.
func NewCache(addr string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// ListThreads returns the cached index if present and unexpired,
// otherwise rescans the threads directory and repopulates the cache.
// A Redis error never fails the call: it falls back to the disk scan,
// since the JSONL files are the source of truth and the cache is
// purely an optimization.
func (c *Cache) ListThreads(ctx context.Context) ([]Summary, error) {
	if c == nil || c.rdb == nil {
		return ListThreads()
	}

	if raw, err := c.rdb.Get(ctx, cacheIndexKey).Bytes(); err == nil {
		var cached []Summary
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
	}

	threads, err := ListThreads()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(threads); err == nil {
		c.rdb.Set(ctx, cacheIndexKey, raw, c.ttl)
	}
	return threads, nil
}

// Invalidate drops the cached index, forcing the next ListThreads call
// to rescan. Callers invoke this after appending a new thread or
// changing a title/root path, so the cache never serves stale data
// for longer than necessary.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, cacheIndexKey)
}
