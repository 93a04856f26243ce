// Package adcache keeps a small rolling buffer of pre-fetched, time-limited ad
// content per display slot so the UI never blocks on a provider round trip.
package adcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/metrics"
)

const (
	DefaultCapacity      = 3
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Hour
)

// Config bounds the cache
type Config struct {
	Capacity      int           // Max queued units per slot
	TTL           time.Duration // Units older than this are never served
	SweepInterval time.Duration // How often Run purges and tops up slots
}

type unit struct {
	handle   domain.AdHandle
	loadedAt time.Time
}

type result struct {
	unit unit
	err  error
}

// slot is the per-key state. Every field is guarded by mu.
type slot struct {
	mu       sync.Mutex
	ctx      context.Context // Generation context; cancelled by Clear
	queue    []unit
	inFlight int
	wanted   bool
	cleared  bool
	waiters  []chan result
}

// Cache implements domain.AdSlots on top of an AdProvider.
// Slot keys are expected to be few and fixed, so slots are never evicted.
type Cache struct {
	provider domain.AdProvider
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.Mutex // Guards slots, ctx and cancel only
	slots  map[string]*slot
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup // Outstanding provider requests
}

var _ domain.AdSlots = (*Cache)(nil)

// New creates a cache. Zero config fields take the defaults.
func New(provider domain.AdProvider, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		slots:    make(map[string]*slot),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Preload marks key as wanted and, while the slot has room, requests one
// more unit. Repeated preloads fill the slot one unit at a time.
func (c *Cache) Preload(key string) {
	s := c.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wanted = true
	c.preloadOne(key, s)
}

// Get returns the oldest unexpired unit for key. On a miss it preloads the
// slot and waits for the next delivered unit, a fetch failure or ctx end.
// The caller owns the returned handle and must dispose it.
func (c *Cache) Get(ctx context.Context, key string) (domain.AdHandle, error) {
	s := c.slot(key)
	s.mu.Lock()

	now := c.now()
	for len(s.queue) > 0 {
		u := s.queue[0]
		s.queue[0] = unit{}
		s.queue = s.queue[1:]
		if c.expired(u, now) {
			u.handle.Dispose()
			c.metrics.ObserveAdGet(key, "expired")
			continue
		}
		s.mu.Unlock()
		c.metrics.ObserveAdGet(key, "hit")
		return u.handle, nil
	}

	c.metrics.ObserveAdGet(key, "miss")
	w := make(chan result, 1)
	s.waiters = append(s.waiters, w)
	s.wanted = true
	c.preloadOne(key, s)
	c.coverWaiters(key, s)
	s.mu.Unlock()

	select {
	case r := <-w:
		return r.unit.handle, r.err
	case <-ctx.Done():
		s.mu.Lock()
		removed := removeWaiter(s, w)
		s.mu.Unlock()
		if !removed {
			// A delivery raced the cancellation
			if r := <-w; r.unit.handle != nil {
				c.giveBack(key, s, r.unit)
			}
		}
		return nil, ctx.Err()
	}
}

// Clear disposes every cached unit, fails every waiter and drops the results
// of provider requests still in flight. The cache stays usable afterwards.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.cancel()
	old := c.slots
	c.slots = make(map[string]*slot)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	disposed := 0
	for _, s := range old {
		s.mu.Lock()
		s.cleared = true
		for _, u := range s.queue {
			u.handle.Dispose()
			disposed++
		}
		s.queue = nil
		for _, w := range s.waiters {
			w <- result{err: domain.ErrCacheCleared}
		}
		s.waiters = nil
		s.mu.Unlock()
	}
	c.logger.Info("cleared ad cache", "slots", len(old), "disposed", disposed)
}

// Sweep purges expired units from every slot and tops up every wanted slot.
// Slots are visited one at a time.
func (c *Cache) Sweep() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.slots))
	slots := make([]*slot, 0, len(c.slots))
	for k, s := range c.slots {
		keys = append(keys, k)
		slots = append(slots, s)
	}
	c.mu.Unlock()

	now := c.now()
	for i, s := range slots {
		s.mu.Lock()
		kept := s.queue[:0]
		purged := 0
		for _, u := range s.queue {
			if c.expired(u, now) {
				u.handle.Dispose()
				purged++
				continue
			}
			kept = append(kept, u)
		}
		for j := len(kept); j < len(s.queue); j++ {
			s.queue[j] = unit{}
		}
		s.queue = kept
		if s.wanted {
			c.fill(keys[i], s)
		}
		s.mu.Unlock()

		if purged > 0 {
			c.logger.Debug("purged expired ads", "slot", keys[i], "count", purged)
		}
	}
}

// Run sweeps every SweepInterval until ctx ends
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of queued units for key, expired or not
func (c *Cache) Len(key string) int {
	s := c.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (c *Cache) slot(key string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{ctx: c.ctx}
		c.slots[key] = s
	}
	return s
}

func (c *Cache) expired(u unit, now time.Time) bool {
	return now.Sub(u.loadedAt) >= c.cfg.TTL
}

// preloadOne requests a single unit if queued plus in-flight units leave room.
// Must hold s.mu.
func (c *Cache) preloadOne(key string, s *slot) {
	if len(s.queue)+s.inFlight < c.cfg.Capacity {
		c.request(key, s, 1)
	}
}

// fill requests units for the whole capacity gap. Must hold s.mu.
func (c *Cache) fill(key string, s *slot) {
	c.request(key, s, c.cfg.Capacity-len(s.queue)-s.inFlight)
}

// coverWaiters makes sure every waiter has a fetch to wait for. Must hold s.mu.
func (c *Cache) coverWaiters(key string, s *slot) {
	c.request(key, s, len(s.waiters)-s.inFlight)
}

// request starts n provider requests. Must hold s.mu.
func (c *Cache) request(key string, s *slot, n int) {
	if s.cleared {
		return
	}
	for i := 0; i < n; i++ {
		s.inFlight++
		c.wg.Add(1)
		go c.fetch(key, s)
	}
}

func (c *Cache) fetch(key string, s *slot) {
	defer c.wg.Done()

	handle, err := c.provider.RequestAd(s.ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleared || s.ctx.Err() != nil {
		if handle != nil {
			handle.Dispose()
		}
		c.metrics.ObserveAdFetch(key, "dropped")
		return
	}
	s.inFlight--

	if err != nil {
		c.metrics.ObserveAdFetch(key, "error")
		c.logger.Debug("ad request failed", "slot", key, "error", err)
		if s.inFlight == 0 && len(s.queue) == 0 {
			if !errors.Is(err, domain.ErrNoAd) {
				err = fmt.Errorf("%w: %v", domain.ErrNoAd, err)
			}
			for _, w := range s.waiters {
				w <- result{err: err}
			}
			s.waiters = nil
		}
		return
	}
	c.metrics.ObserveAdFetch(key, "ok")

	c.deliver(key, s, unit{handle: handle, loadedAt: c.now()})
}

// deliver hands u to the oldest waiter, or queues it. Must hold s.mu.
func (c *Cache) deliver(key string, s *slot, u unit) {
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		w <- result{unit: u}
		return
	}
	c.enqueue(key, s, u)
}

// enqueue appends u, disposing it when the queue is full. Must hold s.mu.
func (c *Cache) enqueue(key string, s *slot, u unit) {
	if len(s.queue) >= c.cfg.Capacity {
		u.handle.Dispose()
		c.logger.Debug("slot full, disposed ad", "slot", key)
		return
	}
	s.queue = append(s.queue, u)
}

// giveBack returns a unit handed to a waiter that stopped waiting
func (c *Cache) giveBack(key string, s *slot, u unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared || c.expired(u, c.now()) {
		u.handle.Dispose()
		return
	}
	c.deliver(key, s, u)
}

func removeWaiter(s *slot, w chan result) bool {
	for i, x := range s.waiters {
		if x == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}
