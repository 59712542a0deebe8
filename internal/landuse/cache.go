package landuse

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
	"github.com/wegman-software/tilefilter/internal/store"
)

// CacheOptions configures a Cache
type CacheOptions struct {
	// Capacity is the number of resident feature indexes. 1 (the default)
	// keeps a single region; larger values evict least recently used.
	Capacity int
	// LoadTimeout bounds one load-or-build. Zero means no bound.
	LoadTimeout time.Duration
	// Metrics receives cache counters. Nil creates unregistered counters.
	Metrics *metrics.CacheMetrics
}

// CacheStats are the counters of a cache since creation
type CacheStats struct {
	Hits         int64
	Misses       int64
	Rebuilds     int64
	Evictions    int64
	LoadHits     int64
	LoadNotFound int64
	LoadCorrupt  int64
}

// Cache keeps recently used feature indexes resident. Resolve calls are
// serialized; a slow build blocks other callers.
type Cache struct {
	src     dataset.Source
	st      store.Store
	cap     int
	timeout time.Duration
	m       *metrics.CacheMetrics
	log     *zap.Logger

	mu    sync.Mutex
	lst   *list.List // *FeatureIndex, most recent first
	dict  map[string]*list.Element
	stats CacheStats
}

// NewCache creates an empty cache over src, persisting built indexes to st
func NewCache(src dataset.Source, st store.Store, opts CacheOptions) *Cache {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCacheMetrics(nil)
	}
	return &Cache{
		src:     src,
		st:      st,
		cap:     opts.Capacity,
		timeout: opts.LoadTimeout,
		m:       opts.Metrics,
		log:     logger.Named("cache"),
		lst:     list.New(),
		dict:    make(map[string]*list.Element),
	}
}

// Resolve returns the feature index of regionID. A resident index is returned
// without I/O. Otherwise it is loaded or built, installed as the most recent
// entry, and the least recently used entry is evicted when full. On error the
// resident set is unchanged.
func (c *Cache) Resolve(ctx context.Context, regionID string) (*FeatureIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.dict[regionID]; ok {
		c.lst.MoveToFront(e)
		c.stats.Hits++
		c.m.Hits.Inc()
		return e.Value.(*FeatureIndex), nil
	}

	c.stats.Misses++
	c.m.Misses.Inc()

	start := time.Now()
	res := c.load(ctx, regionID)
	c.m.LoadDuration.Observe(time.Since(start).Seconds())
	if !res.abandoned {
		c.countLoad(res.outcome, res.err)
	}
	if err := res.err; err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("loading %s exceeded %s: %w", regionID, c.timeout, err)
		}
		return nil, err
	}
	fi := res.fi

	for c.lst.Len() >= c.cap {
		back := c.lst.Back()
		evicted := back.Value.(*FeatureIndex)
		c.lst.Remove(back)
		delete(c.dict, evicted.Region())
		c.stats.Evictions++
		c.m.Evictions.Inc()
		c.log.Debug("Evicted feature index", zap.String("region", evicted.Region()))
	}
	c.dict[regionID] = c.lst.PushFront(fi)

	return fi, nil
}

type loadResult struct {
	fi        *FeatureIndex
	outcome   LoadOutcome
	err       error
	abandoned bool // deadline passed before the load returned
}

// load runs one load-or-build. With a timeout the wait ends at the deadline
// even when the source does not watch its context; the abandoned load keeps
// running in the background and may still persist its result.
func (c *Cache) load(ctx context.Context, regionID string) loadResult {
	if c.timeout <= 0 {
		fi, outcome, err := LoadOrBuildFeatureIndex(ctx, c.src, c.st, regionID)
		return loadResult{fi: fi, outcome: outcome, err: err}
	}

	loadCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan loadResult, 1)
	go func() {
		fi, outcome, err := LoadOrBuildFeatureIndex(loadCtx, c.src, c.st, regionID)
		done <- loadResult{fi: fi, outcome: outcome, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-loadCtx.Done():
		c.log.Warn("Abandoned feature index load",
			zap.String("region", regionID),
			zap.Duration("timeout", c.timeout))
		return loadResult{err: loadCtx.Err(), abandoned: true}
	}
}

func (c *Cache) countLoad(outcome LoadOutcome, err error) {
	c.m.Loads.WithLabelValues(outcome.String()).Inc()
	switch outcome {
	case LoadHit:
		c.stats.LoadHits++
		return
	case LoadNotFound:
		c.stats.LoadNotFound++
	case LoadCorrupt:
		c.stats.LoadCorrupt++
	}
	if err == nil {
		c.stats.Rebuilds++
		c.m.Rebuilds.Inc()
	}
}

// Resident reports the most recently resolved region still in the cache
func (c *Cache) Resident() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	front := c.lst.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(*FeatureIndex).Region(), true
}

// Len returns the number of resident indexes
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// Stats returns a copy of the counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
