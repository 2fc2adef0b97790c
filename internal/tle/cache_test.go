package tle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubLoader counts fetches and returns a configurable result.
type stubLoader struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
	delay time.Duration
}

func (s *stubLoader) Fetch(ctx context.Context) (ElementSet, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ElementSet{}, ctx.Err()
		}
	}
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return ElementSet{}, err
	}
	return ElementSet{Name: issName, Line1: issLine1, Line2: issLine2, NORADID: 25544}, nil
}

func (s *stubLoader) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

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

func newTestCache(loader Loader, ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	c := NewCache(loader, ttl, testLogger)
	c.now = clock.Now
	return c, clock
}

// TestCacheHitWithinTTL verifies repeated calls inside the TTL do not refetch.
func TestCacheHitWithinTTL(t *testing.T) {
	loader := &stubLoader{}
	c, clock := newTestCache(loader, time.Hour)

	for i := 0; i < 5; i++ {
		set, err := c.Get(context.Background())
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !set.Complete() {
			t.Fatalf("Get %d: incomplete set", i)
		}
		clock.Advance(10 * time.Minute)
	}

	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

// TestCacheExpiry verifies the set is refetched once the TTL elapses.
func TestCacheExpiry(t *testing.T) {
	loader := &stubLoader{}
	c, clock := newTestCache(loader, time.Hour)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(59*time.Minute + 59*time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times before expiry, want 1", n)
	}

	clock.Advance(time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times after expiry, want 2", n)
	}
}

// TestCacheFailureYieldsEmptySet verifies a failed fetch is distinguishable from success.
func TestCacheFailureYieldsEmptySet(t *testing.T) {
	loader := &stubLoader{err: errors.New("connection refused")}
	c, _ := newTestCache(loader, time.Hour)

	set, err := c.Get(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if set.Complete() {
		t.Error("expected incomplete set on failure")
	}
	if age := c.AgeSeconds(); age != -1 {
		t.Errorf("AgeSeconds = %v, want -1 for empty cache", age)
	}
}

// TestCacheFailureCachedUntilExpiry verifies a failed fetch is served for the
// rest of the TTL and retried once it expires.
func TestCacheFailureCachedUntilExpiry(t *testing.T) {
	loader := &stubLoader{err: errors.New("503")}
	c, clock := newTestCache(loader, time.Hour)

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	loader.setErr(nil)
	clock.Advance(time.Minute)

	set, err := c.Get(context.Background())
	if err == nil || err.Error() != "503" {
		t.Fatalf("Get inside TTL: err = %v, want cached 503", err)
	}
	if set.Complete() {
		t.Error("expected empty set while the failure is cached")
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times inside TTL, want 1", n)
	}

	clock.Advance(time.Hour)
	set, err = c.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if !set.Complete() {
		t.Error("expected complete set after recovery")
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2", n)
	}
}

// TestCacheInvalidateClearsFailure verifies a manual refresh retries at once.
func TestCacheInvalidateClearsFailure(t *testing.T) {
	loader := &stubLoader{err: errors.New("503")}
	c, _ := newTestCache(loader, time.Hour)

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	loader.setErr(nil)
	c.Invalidate()

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2", n)
	}
}

// TestCacheExpiredFailureKeepsNothing verifies an expired set is not served when the refresh fails.
func TestCacheExpiredFailureKeepsNothing(t *testing.T) {
	loader := &stubLoader{}
	c, clock := newTestCache(loader, time.Hour)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	loader.setErr(errors.New("timeout"))

	set, err := c.Get(context.Background())
	if err == nil {
		t.Fatal("expected error after expiry with failing loader")
	}
	if set.Complete() {
		t.Error("expected empty set")
	}
	if _, ok := c.Peek(); !ok {
		t.Error("Peek should still return the stale set")
	}
}

// TestCacheConcurrentMisses verifies concurrent callers share a single fetch.
func TestCacheConcurrentMisses(t *testing.T) {
	loader := &stubLoader{delay: 50 * time.Millisecond}
	c, _ := newTestCache(loader, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background()); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

// TestCacheCancelledCallerDoesNotFailOthers verifies one waiter leaving does
// not cancel the fetch it shares with others.
func TestCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	loader := &stubLoader{delay: 200 * time.Millisecond}
	c, _ := newTestCache(loader, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		firstErr <- err
	}()

	// Let the first caller start the fetch before the second joins.
	for loader.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	secondErr := make(chan error, 1)
	go func() {
		set, err := c.Get(context.Background())
		if err == nil && !set.Complete() {
			err = errors.New("incomplete set")
		}
		secondErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller: err = %v, want context.Canceled", err)
	}
	if err := <-secondErr; err != nil {
		t.Errorf("second caller: %v", err)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
	if _, ok := c.Peek(); !ok {
		t.Error("shared fetch should have stored the set")
	}
}

func TestCacheInvalidate(t *testing.T) {
	loader := &stubLoader{}
	c, _ := newTestCache(loader, time.Hour)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Invalidate()
	if _, ok := c.Peek(); ok {
		t.Error("Peek after Invalidate should report empty")
	}
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2", n)
	}
}

func TestNewCacheDefaultTTL(t *testing.T) {
	c := NewCache(&stubLoader{}, 0, testLogger)
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want %v", c.TTL(), DefaultTTL)
	}
}
