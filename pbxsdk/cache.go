/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheEntry is a cached value and the time it was stored. The entry carries no
// ttl; readers decide freshness per lookup.
type CacheEntry struct {
	Value     any
	CreatedAt time.Time
}

// ResultCache is a key/value store for read results. Concurrent writers to the
// same key resolve last-write-wins.
type ResultCache struct {
	items   *gocache.Cache
	now     func() time.Time
	metrics *metrics
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		items: gocache.New(gocache.NoExpiration, 0),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *ResultCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the value for key if it is at most ttl old. A stale entry is
// deleted and reported as absent.
func (c *ResultCache) Get(key string, ttl time.Duration) (any, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		c.metrics.cacheLookup(false)
		return nil, false
	}
	entry := v.(CacheEntry)
	if c.now().Sub(entry.CreatedAt) > ttl {
		c.items.Delete(key)
		c.metrics.cacheLookup(false)
		return nil, false
	}
	c.metrics.cacheLookup(true)
	return entry.Value, true
}

// Set stores value under key, superseding any previous entry.
func (c *ResultCache) Set(key string, value any) {
	c.items.Set(key, CacheEntry{Value: value, CreatedAt: c.now()}, gocache.NoExpiration)
}

// Delete drops a single key.
func (c *ResultCache) Delete(key string) {
	c.items.Delete(key)
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.items.Flush()
}

// Len returns the number of stored entries, stale or not.
func (c *ResultCache) Len() int {
	return c.items.ItemCount()
}

// Cached returns the cached value for key when useCache is set and the entry is
// fresh; otherwise it calls fetch and stores a successful result.
func Cached[T any](ctx context.Context, cache *ResultCache, key string, ttl time.Duration, useCache bool, fetch func(ctx context.Context) (T, error)) (T, error) {
	if useCache {
		if v, ok := cache.Get(key, ttl); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	cache.Set(key, v)
	return v, nil
}
