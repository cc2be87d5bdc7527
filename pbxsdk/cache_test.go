/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestResultCacheTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewResultCache()
	cache.SetClock(clock.Now)

	cache.Set("extensions", []string{"1001", "1002"})

	v, ok := cache.Get("extensions", 30*time.Second)
	if !ok {
		t.Fatal("Expected value immediately after Set")
	}
	if got := v.([]string); len(got) != 2 {
		t.Errorf("Expected 2 items, got %d", len(got))
	}

	clock.Advance(30 * time.Second)
	if _, ok := cache.Get("extensions", 30*time.Second); !ok {
		t.Error("Expected entry exactly ttl old to be fresh")
	}

	clock.Advance(time.Millisecond)
	if _, ok := cache.Get("extensions", 30*time.Second); ok {
		t.Error("Expected entry older than ttl to be absent")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected stale entry to be evicted, got %d entries", cache.Len())
	}
}

func TestResultCacheTTLChosenPerRead(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := NewResultCache()
	cache.SetClock(clock.Now)

	cache.Set("queues", 1)
	clock.Advance(10 * time.Second)

	if _, ok := cache.Get("queues", time.Minute); !ok {
		t.Error("Expected entry to be fresh for a one-minute ttl")
	}
	if _, ok := cache.Get("queues", 5*time.Second); ok {
		t.Error("Expected entry to be stale for a five-second ttl")
	}
}

func TestResultCacheSupersedeAndClear(t *testing.T) {
	cache := NewResultCache()
	cache.Set("k", "first")
	cache.Set("k", "second")

	v, ok := cache.Get("k", time.Minute)
	if !ok || v != "second" {
		t.Errorf("Expected 'second', got %v", v)
	}

	cache.Set("other", 1)
	cache.Delete("k")
	if _, ok := cache.Get("k", time.Minute); ok {
		t.Error("Expected deleted key to be absent")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", cache.Len())
	}
}

func TestCached(t *testing.T) {
	cache := NewResultCache()
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	t.Run("second read hits cache", func(t *testing.T) {
		v1, _ := Cached(ctx, cache, "n", time.Minute, true, fetch)
		v2, _ := Cached(ctx, cache, "n", time.Minute, true, fetch)
		if v1 != 1 || v2 != 1 || calls != 1 {
			t.Errorf("Expected one fetch, got values %d/%d after %d calls", v1, v2, calls)
		}
	})

	t.Run("bypass refetches and refreshes", func(t *testing.T) {
		v, _ := Cached(ctx, cache, "n", time.Minute, false, fetch)
		if v != 2 {
			t.Errorf("Expected refetched value 2, got %d", v)
		}
		cached, _ := Cached(ctx, cache, "n", time.Minute, true, fetch)
		if cached != 2 {
			t.Errorf("Expected refreshed cached value 2, got %d", cached)
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Cached(ctx, cache, "e", time.Minute, true, func(context.Context) (int, error) {
			return 0, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected boom, got %v", err)
		}
		if _, ok := cache.Get("e", time.Minute); ok {
			t.Error("Expected failed fetch not to be cached")
		}
	})
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	if _, ok := store.Get(); ok {
		t.Error("Expected empty store")
	}

	store.Set("abc")
	if token, ok := store.Get(); !ok || token != "abc" {
		t.Errorf("Expected 'abc', got '%s'", token)
	}

	store.Set("def")
	if token, _ := store.Get(); token != "def" {
		t.Errorf("Expected 'def', got '%s'", token)
	}

	store.Clear()
	if _, ok := store.Get(); ok {
		t.Error("Expected no token after Clear")
	}
}

func TestSessionStoreClearVisibleAcrossGoroutines(t *testing.T) {
	store := NewSessionStore()
	store.Set("abc")
	store.Clear()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Get(); ok {
				t.Error("Expected cleared token to be absent")
			}
		}()
	}
	wg.Wait()
}
