package tle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/star/isstrack/internal/metrics"
)

// DefaultTTL is how long a fetched element set is served before refetching.
const DefaultTTL = time.Hour

// Loader produces a fresh element set. *Fetcher implements it.
type Loader interface {
	Fetch(ctx context.Context) (ElementSet, error)
}

// Cache holds the outcome of the most recent fetch for a fixed TTL. A failed
// fetch is cached like a successful one, so callers see the same error until
// it expires or Invalidate is called. Concurrent misses share one fetch.
type Cache struct {
	loader Loader
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	current  ElementSet // last complete set, kept past expiry for Peek
	storedAt time.Time
	lastErr  error // most recent failure, if newer than current
	failedAt time.Time
}

// NewCache wraps loader with a TTL cache. A non-positive ttl selects DefaultTTL.
func NewCache(loader Loader, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		loader: loader,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached outcome while it is younger than the TTL, otherwise
// fetches a new one. On failure it returns the zero ElementSet and the fetch
// error. The shared fetch does not inherit ctx cancellation; a caller whose
// ctx ends stops waiting and gets ctx.Err() while the fetch completes for the
// others.
func (c *Cache) Get(ctx context.Context) (ElementSet, error) {
	if o, ok := c.fresh(); ok {
		metrics.IncTLECache("hit")
		return o.set, o.err
	}
	metrics.IncTLECache("miss")

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("tle", func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if o, ok := c.fresh(); ok {
			return o.set, o.err
		}
		set, err := c.loader.Fetch(fetchCtx)
		if err != nil {
			c.storeFailure(err)
			return ElementSet{}, err
		}
		c.store(set)
		return set, nil
	})

	select {
	case <-ctx.Done():
		return ElementSet{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("TLE fetch shared between callers", "component", "tle")
		}
		if res.Err != nil {
			return ElementSet{}, res.Err
		}
		return res.Val.(ElementSet), nil
	}
}

// Peek returns the last complete set without fetching, even if it has expired
// or a later fetch failed.
func (c *Cache) Peek() (ElementSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current.Complete()
}

// Invalidate drops the cached set and any cached failure so the next Get
// fetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = ElementSet{}
	c.storedAt = time.Time{}
	c.lastErr = nil
	c.failedAt = time.Time{}
	c.mu.Unlock()
	c.logger.Info("TLE cache invalidated", "component", "tle")
}

// AgeSeconds returns the age of the cached set in seconds, or -1 when empty.
func (c *Cache) AgeSeconds() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.current.Complete() {
		return -1
	}
	return c.now().Sub(c.storedAt).Seconds()
}

// outcome is a cached fetch result: a complete set or the error that
// replaced it.
type outcome struct {
	set ElementSet
	err error
}

func (c *Cache) fresh() (outcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	if c.lastErr != nil {
		return outcome{err: c.lastErr}, now.Sub(c.failedAt) < c.ttl
	}
	if !c.current.Complete() || now.Sub(c.storedAt) >= c.ttl {
		return outcome{}, false
	}
	return outcome{set: c.current}, true
}

func (c *Cache) store(set ElementSet) {
	c.mu.Lock()
	c.current = set
	c.storedAt = c.now()
	c.lastErr = nil
	c.failedAt = time.Time{}
	c.mu.Unlock()
	metrics.SetTLEEpoch(set.Epoch)
}

func (c *Cache) storeFailure(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.failedAt = c.now()
	c.mu.Unlock()
	c.logger.Info("TLE failure cached", "component", "tle", "ttl", c.ttl.String())
}
