// Package freshcache memoizes an expensive lookup with three freshness
// tiers. A fresh entry is served as is. A stale entry is served while one
// background refresh replaces it. An expired or missing entry makes the
// caller wait for the loader, and concurrent callers for the same key share
// that single call.
package freshcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFreshTTL is how long an entry is served without a refresh.
	DefaultFreshTTL = time.Minute
	// DefaultMaxTTL is how long an entry may be served at all.
	DefaultMaxTTL = 4 * time.Minute
	// DefaultMaxEntries bounds the entry table when Config leaves it unset.
	DefaultMaxEntries = 10000
)

// Loader computes the value for key. Per-call values that must not take
// part in the cache key (trace ids, loggers) travel in ctx.
type Loader[K, V any] func(ctx context.Context, key K) (V, error)

// Config tunes a Cache. Zero fields take the package defaults.
type Config[V any] struct {
	// Name labels log lines.
	Name     string
	FreshTTL time.Duration
	MaxTTL   time.Duration
	// MaxEntries bounds the entry table; least recently read keys go first.
	MaxEntries int
	// Extract turns a stored value into the copy handed to one caller. It
	// must not share mutable state with its input. Identity when nil.
	Extract func(V) V
	Now     func() time.Time
	Logger  *zerolog.Logger
	Metrics Metrics
}

// entry is replaced as a whole on refresh and never mutated after it is
// stored, so readers may use it without holding a lock.
type entry[V any] struct {
	value      V
	computedAt time.Time
	freshUntil time.Time
	maxUntil   time.Time
}

type Cache[K, V any] struct {
	name     string
	load     Loader[K, V]
	freshTTL time.Duration
	maxTTL   time.Duration
	extract  func(V) V
	now      func() time.Time
	log      zerolog.Logger
	metrics  Metrics

	entries *lru.Cache[string, *entry[V]]
	group   singleflight.Group

	mu         sync.Mutex
	refreshing map[string]struct{}
}

// New wraps load. The returned cache's Get has the same shape as load.
func New[K, V any](load Loader[K, V], cfg Config[V]) *Cache[K, V] {
	if cfg.FreshTTL <= 0 {
		cfg.FreshTTL = DefaultFreshTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultMaxTTL
	}
	if cfg.MaxTTL < cfg.FreshTTL {
		cfg.MaxTTL = cfg.FreshTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Extract == nil {
		cfg.Extract = func(v V) V { return v }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	c := &Cache[K, V]{
		name:       cfg.Name,
		load:       load,
		freshTTL:   cfg.FreshTTL,
		maxTTL:     cfg.MaxTTL,
		extract:    cfg.Extract,
		now:        cfg.Now,
		log:        log,
		metrics:    cfg.Metrics,
		refreshing: make(map[string]struct{}),
	}
	// Only fails for a non-positive size, which is ruled out above.
	c.entries, _ = lru.NewWithEvict[string, *entry[V]](cfg.MaxEntries, func(string, *entry[V]) {
		c.metrics.Eviction()
	})
	return c
}

// Get returns the value for key, loading it when there is no usable entry.
// A caller whose ctx ends stops waiting; the load it started keeps running
// and still populates the cache.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	k, err := keyOf(key)
	if err != nil {
		return zero, err
	}

	now := c.now()
	if e, ok := c.entries.Get(k); ok {
		switch {
		case now.Before(e.freshUntil):
			c.metrics.Hit()
			return c.extract(e.value), nil
		case now.Before(e.maxUntil):
			c.metrics.Stale()
			c.revalidate(ctx, k, key)
			return c.extract(e.value), nil
		}
	}

	c.metrics.Miss()
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		return c.refresh(detached, k, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return c.extract(v), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len reports the number of stored entries.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// refresh runs the loader and stores its result. Errors leave any existing
// entry in place.
func (c *Cache[K, V]) refresh(ctx context.Context, k string, key K) (V, error) {
	v, err := c.load(ctx, key)
	if err != nil {
		return v, err
	}
	at := c.now()
	c.entries.Add(k, &entry[V]{
		value:      v,
		computedAt: at,
		freshUntil: at.Add(c.freshTTL),
		maxUntil:   at.Add(c.maxTTL),
	})
	return v, nil
}

// revalidate starts a background refresh of k unless one is running.
func (c *Cache[K, V]) revalidate(ctx context.Context, k string, key K) {
	c.mu.Lock()
	if _, busy := c.refreshing[k]; busy {
		c.mu.Unlock()
		return
	}
	c.refreshing[k] = struct{}{}
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, k)
			c.mu.Unlock()
		}()
		_, err, _ := c.group.Do(k, func() (any, error) {
			return c.refresh(ctx, k, key)
		})
		if err != nil {
			c.metrics.RefreshFailed()
			c.logger(ctx).Warn().Err(err).
				Str("cache", c.name).
				Str("key", k).
				Msg("background refresh failed, serving stale value")
		}
	}()
}

func (c *Cache[K, V]) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.log
}

// keyOf serializes the key tuple. encoding/json sorts map keys, so equal
// values always produce the same key.
func keyOf[K any](key K) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("freshcache: encode key: %w", err)
	}
	return string(raw), nil
}
