package local

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TTLConfig holds TTL cache settings.
type TTLConfig struct {
	TTL time.Duration
	// GCInterval > 0 starts a janitor that drops expired entries. Expiry is
	// always checked on read regardless.
	GCInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// LoadFunc fetches the authoritative value for key. found=false is a
// negative result that is cached like any other.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (value V, found bool, err error)

type ttlEntry[V any] struct {
	value    V
	found    bool
	expireAt time.Time
}

// TTL is a concurrency-safe read-through cache with per-entry expiry and
// negative caching.
type TTL[K comparable, V any] struct {
	entries sync.Map // K → *ttlEntry[V]
	ttl     time.Duration
	now     func() time.Time
	// gen is bumped on every removal so a load that raced an invalidation
	// does not store its stale result. removeMu makes a removal and a
	// generation-checked store mutually exclusive.
	gen       atomic.Uint64
	removeMu  sync.Mutex
	// beforeStore, if set, runs between the generation check and the store.
	beforeStore func()
	stopGC    chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a TTL cache and, if configured, its background janitor.
func NewTTL[K comparable, V any](cfg TTLConfig) *TTL[K, V] {
	c := &TTL[K, V]{
		ttl:    cfg.TTL,
		now:    cfg.Now,
		stopGC: make(chan struct{}),
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.GCInterval > 0 {
		go c.runGC(cfg.GCInterval)
	}
	return c
}

// Close stops the janitor. Safe to call more than once.
func (c *TTL[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopGC) })
}

func (c *TTL[K, V]) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := c.now()
			c.entries.Range(func(k, v any) bool {
				if !now.Before(v.(*ttlEntry[V]).expireAt) {
					c.entries.CompareAndDelete(k, v)
				}
				return true
			})
		case <-c.stopGC:
			return
		}
	}
}

// Get returns the cached value. cached is false when the key is absent or
// expired; found mirrors the loader's answer for cached negatives.
func (c *TTL[K, V]) Get(key K) (value V, found, cached bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return value, false, false
	}
	e := v.(*ttlEntry[V])
	if !c.now().Before(e.expireAt) {
		c.entries.CompareAndDelete(key, v)
		return value, false, false
	}
	return e.value, e.found, true
}

// Set caches a positive value for the configured TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.entries.Store(key, &ttlEntry[V]{value: value, found: true, expireAt: c.now().Add(c.ttl)})
}

// SetMissing caches a negative result for key.
func (c *TTL[K, V]) SetMissing(key K) {
	var zero V
	c.entries.Store(key, &ttlEntry[V]{value: zero, expireAt: c.now().Add(c.ttl)})
}

// GetOrLoad returns the cached entry or calls load and caches its result.
// Errors are returned as-is and never cached.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load LoadFunc[K, V]) (V, bool, error) {
	if v, found, ok := c.Get(key); ok {
		return v, found, nil
	}
	gen := c.gen.Load()
	v, found, err := load(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	e := &ttlEntry[V]{value: v, found: found, expireAt: c.now().Add(c.ttl)}
	c.storeIfGeneration(gen, key, e)
	return v, found, nil
}

func (c *TTL[K, V]) storeIfGeneration(gen uint64, key K, e *ttlEntry[V]) bool {
	c.removeMu.Lock()
	defer c.removeMu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	if c.beforeStore != nil {
		c.beforeStore()
	}
	c.entries.Store(key, e)
	return true
}

// Generation changes whenever an entry is removed.
func (c *TTL[K, V]) Generation() uint64 { return c.gen.Load() }

// SetIfGeneration caches value only if nothing was removed since gen was
// read. It reports whether the value was stored.
func (c *TTL[K, V]) SetIfGeneration(gen uint64, key K, value V) bool {
	return c.storeIfGeneration(gen, key, &ttlEntry[V]{value: value, found: true, expireAt: c.now().Add(c.ttl)})
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.removeMu.Lock()
	defer c.removeMu.Unlock()
	c.gen.Add(1)
	c.entries.Delete(key)
}

// DeleteWhere removes every entry for which match returns true, expired or
// not, and reports how many were removed.
func (c *TTL[K, V]) DeleteWhere(match func(key K, value V, found bool) bool) int {
	c.removeMu.Lock()
	defer c.removeMu.Unlock()
	c.gen.Add(1)
	n := 0
	c.entries.Range(func(k, v any) bool {
		e := v.(*ttlEntry[V])
		if match(k.(K), e.value, e.found) && c.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

// Len counts stored entries, including expired ones not yet swept.
func (c *TTL[K, V]) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
