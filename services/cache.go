package services

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 1024

// loaderCache keeps the last results of an expensive model call and
// coalesces concurrent misses for the same key into one load. Failed loads
// are not cached.
type loaderCache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

func newLoaderCache[V any](size int) *loaderCache[V] {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &loaderCache[V]{lru: c}
}

func (c *loaderCache[V]) get(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return val.(V), nil
}

func (c *loaderCache[V]) entries() int { return c.lru.Len() }
