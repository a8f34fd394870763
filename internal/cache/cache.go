package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a typed TTL cache. Every entry costs 1, so maxCost is an entry cap.
type Cache[V any] struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func New[V any](maxCost int64, ttl time.Duration) (*Cache[V], error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1e5,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{c: c, ttl: ttl}, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores v and waits for the write buffer so a following Get sees it.
func (c *Cache[V]) Set(key string, v V) {
	c.c.SetWithTTL(key, v, 1, c.ttl)
	c.c.Wait()
}

func (c *Cache[V]) Del(key string) { c.c.Del(key) }

func (c *Cache[V]) Close() { c.c.Close() }
