package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/minelist/status-sync/metrics"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultTimeout       = 4 * time.Second
	DefaultSweepInterval = 10 * time.Minute

	// watchdogGrace is how long a waiter outlives the poll timeout before it
	// gives up on a stuck poll.
	watchdogGrace = time.Second
)

type Options struct {
	// TTL is the age after which a cached result is no longer served.
	TTL time.Duration

	// Timeout bounds every outbound poll.
	Timeout time.Duration

	// SweepInterval is the period of the housekeeping sweep. Zero disables it.
	SweepInterval time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

type GetOptions struct {
	// Force skips the cache and any in-flight poll and always polls anew.
	Force bool
}

type entry struct {
	value    Result
	storedAt time.Time

	// polledAt is when the poll that produced value started.
	polledAt time.Time
}

// Cache is a TTL cache of host status in front of a Provider. Concurrent
// lookups of the same host share one outbound poll.
type Cache struct {
	provider Provider
	logger   *zap.Logger
	now      func() time.Time

	ttl      time.Duration
	timeout  time.Duration
	watchdog time.Duration

	mx      sync.RWMutex
	entries map[string]entry

	// flightMx guards generations, which count how often the flight of a
	// host was forgotten. A waiter only forgets the flight it joined.
	flightMx    sync.Mutex
	generations map[string]uint64
	flights     singleflight.Group

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(provider Provider, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		provider: provider,
		logger:   opts.Logger,
		now:      opts.Now,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		watchdog: opts.Timeout + watchdogGrace,
		entries:  make(map[string]entry),
		stop:     make(chan struct{}),

		generations: make(map[string]uint64),
	}

	if opts.SweepInterval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.sweepLoop(opts.SweepInterval)
		}()
	}

	return c
}

// Close stops the housekeeping sweep. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Get returns the status of host. It never fails: hosts that cannot be
// polled are reported offline.
func (c *Cache) Get(ctx context.Context, host string, opts GetOptions) Result {
	key := normalizeHost(host)

	if !opts.Force {
		if res, ok := c.fresh(key); ok {
			metrics.StatusCacheHitsCount.Add(ctx, 1)
			return res
		}
	}
	metrics.StatusCacheMissCount.Add(ctx, 1)

	c.flightMx.Lock()
	if opts.Force {
		// detach from the current flight so that this call polls anew
		c.forgetLocked(key)
	}
	generation := c.generations[key]
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		if !opts.Force {
			// a poll may have completed since the lookup above
			if res, ok := c.fresh(key); ok {
				return res, nil
			}
		}
		return c.poll(key), nil
	})
	c.flightMx.Unlock()

	watchdog := time.NewTimer(c.watchdog)
	defer watchdog.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			metrics.StatusCoalescedCount.Add(ctx, 1)
		}
		return res.Val.(Result)

	case <-ctx.Done():
		return Offline()

	case <-watchdog.C:
		c.logger.Warn("Status poll did not complete in time; reporting offline",
			zap.String("host", key),
			zap.Duration("watchdog", c.watchdog),
		)
		c.flightMx.Lock()
		if c.generations[key] == generation {
			c.forgetLocked(key)
		}
		c.flightMx.Unlock()
		return Offline()
	}
}

func (c *Cache) forgetLocked(key string) {
	c.flights.Forget(key)
	c.generations[key]++
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return len(c.entries)
}

func (c *Cache) fresh(key string) (Result, bool) {
	c.mx.RLock()
	e, ok := c.entries[key]
	c.mx.RUnlock()

	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return Result{}, false
	}
	return e.value, true
}

func (c *Cache) poll(host string) (res Result) {
	startedAt := c.now()
	outcome := "error"

	defer func() {
		if msg := recover(); msg != nil {
			c.logger.Error("Status provider panicked",
				zap.String("host", host),
				zap.Error(fmt.Errorf("%v", msg)),
			)
			res = Offline()
			outcome = "error"
		}

		c.store(host, res, startedAt)
		metrics.StatusPollsCount.Add(context.Background(), 1, metrics.With("outcome", outcome))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	status, err := c.provider.Fetch(ctx, host)
	switch {
	case err != nil:
		c.logger.Debug("Status poll failed; reporting offline",
			zap.String("host", host),
			zap.Error(err),
		)
		return Offline()

	case status == nil || !status.Online:
		outcome = "offline"
		return Offline()

	default:
		outcome = "online"
		return *status
	}
}

func (c *Cache) store(host string, res Result, polledAt time.Time) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if cur, ok := c.entries[host]; ok && cur.polledAt.After(polledAt) {
		return // a newer poll already landed
	}
	c.entries[host] = entry{
		value:    res,
		storedAt: c.now(),
		polledAt: polledAt,
	}
}

func (c *Cache) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			removed := c.sweep()
			c.logger.Debug("Swept status cache",
				zap.Int("removed", removed),
				zap.Int("remaining", c.Len()),
			)
		}
	}
}

// sweep drops entries older than the TTL and returns how many were removed.
func (c *Cache) sweep() int {
	now := c.now()

	c.mx.Lock()
	defer c.mx.Unlock()

	removed := 0
	for host, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, host)
			removed++
		}
	}
	metrics.StatusCacheSize.Record(context.Background(), int64(len(c.entries)))

	return removed
}
