// Package listcache is a short lived read-through cache of the public server
// list and of per-server details. It is not write-through: changes to server
// records show up once the cached copy expires.
package listcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/minelist/status-sync/metrics"
	"github.com/minelist/status-sync/store"
)

const (
	DefaultTTL              = time.Minute
	DefaultCleanupThreshold = 100
	DefaultLoadTimeout      = 10 * time.Second

	keyAll = "\x00all"
)

type ServerReader interface {
	ListEnabledServers(ctx context.Context) ([]store.ServerRecord, error)
	FindServer(ctx context.Context, slug string) (*store.ServerRecord, error)
}

type Options struct {
	TTL              time.Duration
	CleanupThreshold int

	// DefaultCooldown is reported for servers without their own cooldown.
	DefaultCooldown time.Duration

	// LoadTimeout bounds a storage read shared by coalesced callers.
	LoadTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Cache struct {
	servers ServerReader
	logger  *zap.Logger
	now     func() time.Time

	ttl              time.Duration
	cleanupThreshold int
	defaultCooldown  time.Duration
	loadTimeout      time.Duration

	mx     sync.RWMutex
	all    *entry[[]PublicServer]
	bySlug map[string]entry[PublicServer]

	loads singleflight.Group
}

func New(servers ServerReader, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupThreshold <= 0 {
		opts.CleanupThreshold = DefaultCleanupThreshold
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache{
		servers:          servers,
		logger:           opts.Logger,
		now:              opts.Now,
		ttl:              opts.TTL,
		cleanupThreshold: opts.CleanupThreshold,
		defaultCooldown:  opts.DefaultCooldown,
		loadTimeout:      opts.LoadTimeout,
		bySlug:           make(map[string]entry[PublicServer]),
	}
}

// GetAll returns every enabled server ordered by votes, most voted first.
// The returned slice is shared and must not be modified.
func (c *Cache) GetAll(ctx context.Context) ([]PublicServer, error) {
	c.mx.RLock()
	all := c.all
	c.mx.RUnlock()

	if all != nil && c.now().Sub(all.storedAt) < c.ttl {
		metrics.ListCacheHitsCount.Add(ctx, 1, metrics.With("kind", "list"))
		return all.value, nil
	}
	metrics.ListCacheMissCount.Add(ctx, 1, metrics.With("kind", "list"))

	v, err := c.load(ctx, keyAll, func(ctx context.Context) (interface{}, error) {
		recs, err := c.servers.ListEnabledServers(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]PublicServer, 0, len(recs))
		for i := range recs {
			out = append(out, project(&recs[i], c.defaultCooldown))
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Votes != out[j].Votes {
				return out[i].Votes > out[j].Votes
			}
			return out[i].Slug < out[j].Slug
		})

		c.mx.Lock()
		c.all = &entry[[]PublicServer]{value: out, storedAt: c.now()}
		c.mx.Unlock()

		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]PublicServer), nil
}

// GetOne returns the server identified by slug, or nil when there is none.
func (c *Cache) GetOne(ctx context.Context, slug string) (*PublicServer, error) {
	key := store.Fold(slug)
	if key == "" {
		return nil, nil
	}

	c.mx.RLock()
	e, ok := c.bySlug[key]
	c.mx.RUnlock()

	if ok && c.now().Sub(e.storedAt) < c.ttl {
		metrics.ListCacheHitsCount.Add(ctx, 1, metrics.With("kind", "detail"))
		pub := e.value
		return &pub, nil
	}
	metrics.ListCacheMissCount.Add(ctx, 1, metrics.With("kind", "detail"))

	v, err := c.load(ctx, key, func(ctx context.Context) (interface{}, error) {
		rec, err := c.servers.FindServer(ctx, slug)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		pub := project(rec, c.defaultCooldown)
		c.put(key, pub)
		return &pub, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	pub := *v.(*PublicServer)
	return &pub, nil
}

// load runs fn once for all concurrent callers of key. The shared read is
// detached from the caller that started it, so a caller that goes away only
// gives up its own wait.
func (c *Cache) load(
	ctx context.Context,
	key string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	ch := c.loads.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return fn(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) put(key string, pub PublicServer) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.bySlug[key] = entry[PublicServer]{value: pub, storedAt: c.now()}
	if len(c.bySlug) > c.cleanupThreshold {
		c.cleanupLocked()
	}
}

// cleanupLocked evicts detail entries older than twice the ttl.
func (c *Cache) cleanupLocked() {
	now := c.now()
	before := len(c.bySlug)
	for key, e := range c.bySlug {
		if now.Sub(e.storedAt) > 2*c.ttl {
			delete(c.bySlug, key)
		}
	}
	c.logger.Debug("Cleaned up server detail cache",
		zap.Int("removed", before-len(c.bySlug)),
		zap.Int("remaining", len(c.bySlug)),
	)
}
