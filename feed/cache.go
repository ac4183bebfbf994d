package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Aggregate is satisfied by *Aggregator.
type Aggregate interface {
	Aggregate(ctx context.Context) Result
}

// Store keeps the last good result across restarts.
type Store interface {
	Load(ctx context.Context) (Result, bool, error)
	Save(ctx context.Context, r Result) error
}

// Cache serves aggregation results for a TTL. Concurrent misses share one
// aggregation round.
type Cache struct {
	agg   Aggregate
	ttl   time.Duration
	store Store
	lg    *zap.SugaredLogger
	now   func() time.Time

	mu   sync.RWMutex
	cur  Result
	have bool

	group singleflight.Group
}

// NewCache wraps agg. store may be nil.
func NewCache(agg Aggregate, ttl time.Duration, store Store, lg *zap.SugaredLogger) *Cache {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &Cache{agg: agg, ttl: ttl, store: store, lg: lg, now: time.Now}
}

// Warm loads the persisted result, if any. It ages from its original
// fetch time.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	r, ok, err := c.store.Load(ctx)
	if err != nil || !ok {
		return err
	}
	c.mu.Lock()
	if !c.have {
		c.cur, c.have = r, true
	}
	c.mu.Unlock()
	c.lg.Infow("loaded cached feed result", "posts", len(r.Posts))
	return nil
}

// Peek returns the current result without fetching.
func (c *Cache) Peek() (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur, c.have
}

// Get returns a fresh result. A stale or missing result triggers one
// aggregation round shared by all concurrent callers.
func (c *Cache) Get(ctx context.Context) Result {
	c.mu.RLock()
	cur, have := c.cur, c.have
	c.mu.RUnlock()
	if have && c.fresh(cur) {
		return cur
	}
	return c.Refresh(ctx)
}

// Serve returns the current result at once when there is one, refreshing
// it in the background if stale. With nothing cached it blocks like Get.
func (c *Cache) Serve(ctx context.Context) Result {
	c.mu.RLock()
	cur, have := c.cur, c.have
	c.mu.RUnlock()
	if !have {
		return c.Refresh(ctx)
	}
	if !c.fresh(cur) {
		go c.Refresh(ctx)
	}
	return cur
}

func (c *Cache) fresh(r Result) bool {
	return !r.Fetched.IsZero() && c.now().Sub(r.Fetched) < c.ttl
}

// Refresh aggregates now, regardless of age. The round is detached from
// ctx so one cancelled request does not fail the others waiting on it.
func (c *Cache) Refresh(ctx context.Context) Result {
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.update(context.WithoutCancel(ctx)), nil
	})
	return v.(Result)
}

func (c *Cache) update(ctx context.Context) Result {
	c.mu.RLock()
	agg := c.agg
	c.mu.RUnlock()
	r := agg.Aggregate(ctx)

	c.mu.Lock()
	prev, had := c.cur, c.have
	// total failure: keep serving the previous posts, flagged as failed
	if had && r.Sources > 0 && r.Failed == r.Sources && len(prev.Posts) > 0 {
		keep := prev
		keep.Failed = r.Failed
		keep.Sources = r.Sources
		keep.Fetched = r.Fetched
		r = keep
	}
	c.cur, c.have = r, true
	c.mu.Unlock()

	if c.store != nil && r.Failed == 0 && len(r.Posts) > 0 {
		if err := c.store.Save(ctx, r); err != nil {
			c.lg.Warnw("error saving feed result", "err", err)
		}
	}
	return r
}

// Reset swaps the aggregator, for a changed source list, and marks the
// current result stale. Posts are still served until the next round.
func (c *Cache) Reset(agg Aggregate) {
	c.mu.Lock()
	c.agg = agg
	c.cur.Fetched = time.Time{}
	c.mu.Unlock()
}

// Run refreshes the cache every TTL until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	if c.ttl <= 0 {
		return
	}
	t := time.NewTicker(c.ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r := c.Refresh(ctx)
			c.lg.Debugw("refreshed feeds", "posts", len(r.Posts), "failed", r.Failed)
		}
	}
}
