// Package cache memoizes expensive vendor reads per (vendor, key) for a
// fixed window.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache keys.
const (
	KeyShopInfo = "shopInfo"
	KeyMenuList = "menuList"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 24 * time.Hour

// ErrNoFetcher is returned by Get when no fetch function is registered for
// the (vendor, key) pair.
var ErrNoFetcher = errors.New("no fetch function registered")

// Fetcher produces fresh data for a key. params carries whatever the
// caller needs to reach the vendor (typically an authenticated client).
type Fetcher func(ctx context.Context, params any) (any, error)

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithDedupe makes concurrent misses for the same key share one fetch.
func WithDedupe(enabled bool) Option {
	return func(c *Cache) { c.dedupe = enabled }
}

type entry struct {
	data any
	at   time.Time
}

type vendorState struct {
	gen      uint64
	entries  map[string]entry
	fetchers map[string]Fetcher
}

// Cache is a per-vendor, per-key time-boxed memo. Entries are never
// evicted proactively; they are recomputed on the first read after expiry
// or after Invalidate.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	dedupe  bool
	group   singleflight.Group
	vendors map[string]*vendorState
	logger  *slog.Logger

	hits    uint64
	misses  uint64
	shared  uint64
	fetches uint64
}

// New creates a cache. A ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		vendors: make(map[string]*vendorState),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) vendor(name string) *vendorState {
	v, ok := c.vendors[name]
	if !ok {
		v = &vendorState{entries: make(map[string]entry), fetchers: make(map[string]Fetcher)}
		c.vendors[name] = v
	}
	return v
}

// Register installs the fetch function for (vendor, key), replacing any
// previous one.
func (c *Cache) Register(vendor, key string, fn Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vendor(vendor).fetchers[key] = fn
}

func (c *Cache) valid(e entry, ok bool, now time.Time) bool {
	return ok && e.data != nil && now.Sub(e.at) < c.ttl
}

// Valid reports whether every key holds an unexpired entry for vendor.
func (c *Cache) Valid(vendor string, keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vendors[vendor]
	if !ok {
		return false
	}
	now := c.now()
	for _, k := range keys {
		e, ok := v.entries[k]
		if !c.valid(e, ok, now) {
			return false
		}
	}
	return true
}

// Get returns the cached data for (vendor, key) or fetches, stores and
// returns fresh data. Fetch errors and nil results are not stored.
func (c *Cache) Get(ctx context.Context, vendor, key string, params any) (any, error) {
	c.mu.Lock()
	v := c.vendor(vendor)
	e, ok := v.entries[key]
	if c.valid(e, ok, c.now()) {
		c.hits++
		c.mu.Unlock()
		return e.data, nil
	}
	c.misses++
	fn := v.fetchers[key]
	gen := v.gen
	c.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("%s %s: %w", vendor, key, ErrNoFetcher)
	}

	if !c.dedupe {
		return c.fetch(ctx, vendor, key, gen, fn, params)
	}

	for {
		val, retry, err := c.join(ctx, vendor, key, gen, fn, params)
		if !retry {
			return val, err
		}
		c.logger.Debug("shared fetch cancelled by its caller, retrying", "vendor", vendor, "key", key)
	}
}

// join runs or joins the flight for (vendor, key). The caller whose params
// the flight uses waits for it to finish even when its ctx is done, so the
// page behind params is never used after the caller returns. retry is set
// when the flight failed only because another caller went away.
func (c *Cache) join(ctx context.Context, vendor, key string, gen uint64, fn Fetcher, params any) (val any, retry bool, err error) {
	var leader atomic.Bool
	ch := c.group.DoChan(flightKey(vendor, key), func() (any, error) {
		leader.Store(true)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return c.fetch(ctx, vendor, key, gen, fn, params)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		if !leader.Load() {
			// The flight either belongs to another caller or will see
			// ctx done before touching params.
			return nil, false, ctx.Err()
		}
		res = <-ch
	}

	if res.Shared {
		c.mu.Lock()
		c.shared++
		c.mu.Unlock()
	}
	if res.Err != nil && !leader.Load() && ctx.Err() == nil && isContextErr(res.Err) {
		return nil, true, nil
	}
	return res.Val, false, res.Err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) fetch(ctx context.Context, vendor, key string, gen uint64, fn Fetcher, params any) (any, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()

	c.logger.Debug("fetching fresh data", "vendor", vendor, "key", key)
	data, err := fn(ctx, params)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// An Invalidate during the fetch makes this result stale.
	if v := c.vendor(vendor); v.gen == gen {
		v.entries[key] = entry{data: data, at: c.now()}
	}
	return data, nil
}

// Invalidate drops every entry of vendor, or of all vendors when vendor is
// empty. The next Get of any dropped key fetches again.
func (c *Cache) Invalidate(vendor string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, v := range c.vendors {
		if vendor != "" && name != vendor {
			continue
		}
		v.gen++
		for key := range v.entries {
			delete(v.entries, key)
		}
		for key := range v.fetchers {
			c.group.Forget(flightKey(name, key))
		}
	}
	c.logger.Info("cache invalidated", "vendor", vendorLabel(vendor))
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits    uint64               `json:"hits"`
	Misses  uint64               `json:"misses"`
	Shared  uint64               `json:"shared"`
	Fetches uint64               `json:"fetches"`
	Entries map[string]time.Time `json:"entries" doc:"Valid entries keyed vendor/key, with their fetch time"`
}

// Stats returns a snapshot of counters and valid entries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Shared:  c.shared,
		Fetches: c.fetches,
		Entries: make(map[string]time.Time),
	}
	now := c.now()
	for name, v := range c.vendors {
		for key, e := range v.entries {
			if c.valid(e, true, now) {
				s.Entries[flightKey(name, key)] = e.at
			}
		}
	}
	return s
}

func flightKey(vendor, key string) string {
	return vendor + "/" + key
}

func vendorLabel(vendor string) string {
	if vendor == "" {
		return "all"
	}
	return vendor
}
