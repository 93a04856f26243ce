package adcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/wipewatch/internal/adapter"
	"github.com/mmcdole/wipewatch/internal/domain"
)

type fakeHandle struct {
	id       int
	disposed atomic.Bool
}

func (h *fakeHandle) Dispose() { h.disposed.Store(true) }

// fakeProvider hands out numbered handles. When gate is set every request
// blocks until a value (or close) arrives on it.
type fakeProvider struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error

	mu      sync.Mutex
	handles []*fakeHandle
}

func (p *fakeProvider) RequestAd(ctx context.Context, _ string) (domain.AdHandle, error) {
	n := p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	h := &fakeHandle{id: int(n)}
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h, nil
}

func (p *fakeProvider) all() []*fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeHandle(nil), p.handles...)
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(p *fakeProvider) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := New(p, Config{Capacity: 3, TTL: time.Hour}, adapter.NullLogger(), nil)
	c.now = clock.Now
	return c, clock
}

func preload(c *Cache, key string, times int) {
	for i := 0; i < times; i++ {
		c.Preload(key)
		c.wg.Wait()
	}
}

func TestEachPreloadAddsOneUnit(t *testing.T) {
	p := &fakeProvider{}
	c, clock := newCache(p)

	for want := 1; want <= 3; want++ {
		preload(c, "banner1", 1)
		assert.Equal(t, want, c.Len("banner1"))
		assert.EqualValues(t, want, p.calls.Load())
	}

	// Full slot: no new fetch
	preload(c, "banner1", 1)
	assert.EqualValues(t, 3, p.calls.Load())
	assert.Equal(t, 3, c.Len("banner1"))

	// TTL elapses; the sweep purges all three and refetches for the wanted slot
	first := p.all()
	clock.Advance(time.Hour)
	c.Sweep()
	c.wg.Wait()

	for _, h := range first {
		assert.True(t, h.disposed.Load(), "handle %d should be disposed", h.id)
	}
	assert.EqualValues(t, 6, p.calls.Load())
	assert.Equal(t, 3, c.Len("banner1"))
}

func TestPreloadCountsInFlightRequests(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	c, _ := newCache(p)

	for i := 0; i < 5; i++ {
		c.Preload("banner1")
	}
	assert.EqualValues(t, 3, p.calls.Load())

	close(p.gate)
	c.wg.Wait()
	assert.Equal(t, 3, c.Len("banner1"))
}

func TestPreloadAfterGetTopsUpByOne(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newCache(p)
	ctx := context.Background()

	preload(c, "banner1", 3)

	_, err := c.Get(ctx, "banner1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len("banner1"))

	preload(c, "banner1", 1)
	assert.Equal(t, 3, c.Len("banner1"))
	assert.EqualValues(t, 4, p.calls.Load())
}

func TestSweepLeavesUnwantedSlotsAlone(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newCache(p)

	c.Sweep()
	c.wg.Wait()
	assert.Zero(t, p.calls.Load())

	_ = c.Len("sidebar") // creates the slot without marking it wanted
	c.Sweep()
	c.wg.Wait()
	assert.Zero(t, p.calls.Load())
}

func TestGetNeverServesExpired(t *testing.T) {
	p := &fakeProvider{}
	c, clock := newCache(p)

	c.Preload("banner1")
	c.wg.Wait()
	stale := p.all()

	// Exactly TTL old counts as expired
	clock.Advance(time.Hour)
	h, err := c.Get(context.Background(), "banner1")
	require.NoError(t, err)

	for _, s := range stale {
		assert.NotSame(t, s, h)
		assert.True(t, s.disposed.Load())
	}
	assert.False(t, h.(*fakeHandle).disposed.Load())
}

func TestGetWaitsForNextDelivery(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	c, _ := newCache(p)

	got := make(chan domain.AdHandle, 1)
	go func() {
		h, err := c.Get(context.Background(), "banner1")
		assert.NoError(t, err)
		got <- h
	}()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.gate <- struct{}{}

	select {
	case h := <-got:
		require.NotNil(t, h)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not served")
	}

	close(p.gate)
	c.wg.Wait()
	assert.EqualValues(t, 1, p.calls.Load(), "a miss preloads one unit")
	assert.Zero(t, c.Len("banner1"), "the waiter took the only unit")
}

func TestReturnedUnitGoesToNextWaiter(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	c, clock := newCache(p)

	got := make(chan domain.AdHandle, 1)
	go func() {
		h, err := c.Get(context.Background(), "banner1")
		assert.NoError(t, err)
		got <- h
	}()
	require.Eventually(t, func() bool { return waiting(c, "banner1") == 1 }, time.Second, 5*time.Millisecond)

	// A unit abandoned by another caller is served before any fetch completes
	returned := &fakeHandle{id: 99}
	c.giveBack("banner1", c.slot("banner1"), unit{handle: returned, loadedAt: clock.Now()})

	select {
	case h := <-got:
		assert.Same(t, returned, h)
	case <-time.After(2 * time.Second):
		t.Fatal("returned unit was queued instead of handed over")
	}

	close(p.gate)
	c.wg.Wait()
	assert.Equal(t, 1, c.Len("banner1"), "the pending fetch lands in the queue")
}

func TestConcurrentWaitersEachGetOneUnit(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	c, _ := newCache(p)

	const waiters = 5
	results := make(chan domain.AdHandle, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			h, err := c.Get(context.Background(), "banner1")
			assert.NoError(t, err)
			results <- h
		}()
	}

	require.Eventually(t, func() bool { return p.calls.Load() >= waiters }, time.Second, 5*time.Millisecond)
	close(p.gate)

	seen := make(map[*fakeHandle]bool)
	for i := 0; i < waiters; i++ {
		select {
		case h := <-results:
			fh := h.(*fakeHandle)
			assert.False(t, seen[fh], "unit served twice")
			seen[fh] = true
		case <-time.After(2 * time.Second):
			t.Fatal("waiter starved")
		}
	}
	c.wg.Wait()
	assert.LessOrEqual(t, c.Len("banner1"), 3)
}

func TestFetchFailureDegradesToNoAd(t *testing.T) {
	p := &fakeProvider{err: fmt.Errorf("ads/banner1: %w", domain.ErrServerOffline)}
	c, _ := newCache(p)

	_, err := c.Get(context.Background(), "banner1")
	assert.ErrorIs(t, err, domain.ErrNoAd)
	c.wg.Wait()
	assert.Zero(t, c.Len("banner1"))
}

func TestGetHonorsContext(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	c, _ := newCache(p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "banner1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A late delivery still lands in the slot for the next caller
	close(p.gate)
	c.wg.Wait()
	assert.Equal(t, 1, c.Len("banner1"))
}

func TestClearDisposesAndDropsLateFetches(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newCache(p)

	c.Preload("banner1")
	c.Preload("interstitial")
	c.wg.Wait()
	cached := p.all()

	// One waiter blocked on a slow fetch
	p.gate = make(chan struct{})
	c.Preload("sidebar")
	waitErr := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "sidebar")
		waitErr <- err
	}()
	require.Eventually(t, func() bool { return waiting(c, "sidebar") == 1 }, time.Second, 5*time.Millisecond)

	c.Clear()

	for _, h := range cached {
		assert.True(t, h.disposed.Load())
	}
	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, domain.ErrCacheCleared)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Clear")
	}

	close(p.gate)
	c.wg.Wait()
	assert.Zero(t, c.Len("sidebar"))
	assert.Zero(t, c.Len("banner1"))
	for _, h := range p.all() {
		assert.True(t, h.disposed.Load(), "late fetch %d must be disposed", h.id)
	}
}

func waiting(c *Cache, key string) int {
	s := c.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func TestClearedCacheIsReusable(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newCache(p)
	c.Preload("banner1")
	c.wg.Wait()

	c.Clear()
	assert.Zero(t, c.Len("banner1"))

	h, err := c.Get(context.Background(), "banner1")
	require.NoError(t, err)
	assert.False(t, h.(*fakeHandle).disposed.Load())
}

func TestSlotsAreIndependentUnderLoad(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newCache(p)
	slots := []string{"banner1", "banner2", "interstitial"}

	var wg sync.WaitGroup
	var served sync.Map
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := slots[i%len(slots)]
			c.Preload(key)
			h, err := c.Get(context.Background(), key)
			if assert.NoError(t, err) {
				_, dup := served.LoadOrStore(h, key)
				assert.False(t, dup, "unit served twice")
			}
			if i%7 == 0 {
				c.Sweep()
			}
		}(i)
	}
	wg.Wait()
	c.wg.Wait()

	for _, key := range slots {
		assert.LessOrEqual(t, c.Len(key), 3)
	}
}
