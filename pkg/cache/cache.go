// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cache provides a self-populating, single-flight cache with TTL,
// idle-timeout and capacity eviction. Removal notifications carry only the
// key and the cause, never the value, and run after the cache lock is
// released.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// RemovalCause says why an entry left the cache.
type RemovalCause int

const (
	// Expired entries outlived their TTL or TTI.
	Expired RemovalCause = iota
	// Evicted entries were dropped to honor MaxEntries.
	Evicted
	// Explicit entries were removed by Invalidate.
	Explicit
	// Cleared entries were removed by Clear or Close.
	Cleared
)

func (c RemovalCause) String() string {
	switch c {
	case Expired:
		return metrics.CauseExpired
	case Evicted:
		return metrics.CauseEvicted
	case Explicit:
		return metrics.CauseExplicit
	case Cleared:
		return metrics.CauseCleared
	default:
		return "unknown"
	}
}

// Loader populates the value for key on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// EvictFunc is notified of every removal. It runs outside the cache lock, on
// the goroutine whose call caused the removal or, for capacity evictions, on
// a background goroutine. A population of the same key does not start until
// the listener for its previous entry has returned.
type EvictFunc func(key string, cause RemovalCause)

// pendingRemoval is a notification queued under the lock. done is closed once
// the listener has returned.
type pendingRemoval struct {
	key   string
	cause RemovalCause
	done  chan struct{}
}

// Options configures a Cache. Zero durations disable the matching policy.
type Options struct {
	// TTL bounds the age of an entry since it was populated.
	TTL time.Duration
	// TTI bounds the time since an entry was last returned by Get.
	TTI time.Duration
	// MaxEntries bounds the number of entries; 0 means unbounded.
	MaxEntries int
	// CleanupInterval is the period of the background expiry sweep; 0 means
	// expired entries are only removed when looked up or by Cleanup.
	CleanupInterval time.Duration
	Clock           timeutil.Clock
	OnEvict         EvictFunc
	Logger          adapters.Logger
	Metrics         *metrics.CacheMetrics
}

type entry[V any] struct {
	key      string
	value    V
	created  time.Time
	accessed time.Time
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	name    string
	loader  Loader[V]
	ttl     time.Duration
	tti     time.Duration
	max     int
	clock   timeutil.Clock
	onEvict EvictFunc
	logger  adapters.Logger
	metrics *metrics.CacheMetrics

	group singleflight.Group

	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List // front is most recently used
	pending  []pendingRemoval
	cleaning map[string]chan struct{} // key -> done of its running listener
	closed   bool

	stopCh    chan struct{}
	stopOnce  sync.Once
	sweepDone chan struct{}
}

// New creates a cache named name that populates misses with loader.
func New[V any](name string, loader Loader[V], opts Options) *Cache[V] {
	c := &Cache[V]{
		name:     name,
		loader:   loader,
		ttl:      opts.TTL,
		tti:      opts.TTI,
		max:      opts.MaxEntries,
		clock:    opts.Clock,
		onEvict:  opts.OnEvict,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		cleaning: make(map[string]chan struct{}),
		stopCh:   make(chan struct{}),
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock()
	}
	if c.logger == nil {
		c.logger = adapters.NewNoOpLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewCacheMetrics()
	}
	c.logger = c.logger.WithFields(adapters.Field{Key: "cache", Value: name})

	if opts.CleanupInterval > 0 && (c.ttl > 0 || c.tti > 0) {
		c.sweepDone = make(chan struct{})
		go c.runCleanup(opts.CleanupInterval)
	}
	return c
}

// Name returns the cache name.
func (c *Cache[V]) Name() string {
	return c.name
}

// Metrics returns the cache's counters.
func (c *Cache[V]) Metrics() *metrics.CacheMetrics {
	return c.metrics
}

// Get returns the cached value for key, populating it on a miss. Concurrent
// misses for one key share a single loader call. The loader runs detached
// from ctx cancellation so an abandoning caller does not fail the others;
// ctx only bounds how long this caller waits.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, common.ErrCacheClosed
	}
	if v, ok := c.lookupLocked(key, true); ok {
		c.unlock()
		c.metrics.RecordHit()
		return v, nil
	}
	c.unlock()
	c.metrics.RecordMiss()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.populate(detached, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordShared()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) populate(ctx context.Context, key string) (any, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.unlock()
			return nil, common.ErrCacheClosed
		}
		// A population that finished just before this one started may
		// already have stored the key.
		if v, ok := c.lookupLocked(key, false); ok {
			c.unlock()
			return v, nil
		}
		done, cleaning := c.cleaning[key]
		c.unlock()
		if !cleaning {
			break
		}
		// The listener for the previous entry is still releasing it.
		<-done
	}

	c.logger.Debug(ctx, "populating", adapters.Field{Key: "key", Value: key})
	v, err := c.loader(ctx, key)
	c.metrics.RecordLoad(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		// The value is never served; let the listener release what the
		// loader acquired.
		c.queueLocked(key, Cleared)
		c.unlock()
		return nil, common.ErrCacheClosed
	}
	c.storeLocked(key, v)
	evicted := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(evicted) > 0 {
		// Victims are other keys; callers of key do not wait on them.
		go c.deliver(evicted)
	}
	return v, nil
}

// lookupLocked returns a live value for key, removing it first if expired.
func (c *Cache[V]) lookupLocked(key string, touch bool) (V, bool) {
	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	now := c.clock.Now()
	if c.expired(e, now) {
		c.removeLocked(elem, Expired)
		return zero, false
	}
	if touch {
		e.accessed = now
		c.lru.MoveToFront(elem)
	}
	return e.value, true
}

func (c *Cache[V]) storeLocked(key string, v V) {
	now := c.clock.Now()
	c.items[key] = c.lru.PushFront(&entry[V]{key: key, value: v, created: now, accessed: now})
	for c.max > 0 && c.lru.Len() > c.max {
		c.removeLocked(c.lru.Back(), Evicted)
	}
	c.metrics.SetEntries(len(c.items))
}

func (c *Cache[V]) removeLocked(elem *list.Element, cause RemovalCause) {
	e := elem.Value.(*entry[V])
	c.lru.Remove(elem)
	delete(c.items, e.key)
	c.metrics.SetEntries(len(c.items))
	c.queueLocked(e.key, cause)
}

// queueLocked records a removal for delivery by the next unlock and marks key
// as being cleaned until its listener returns.
func (c *Cache[V]) queueLocked(key string, cause RemovalCause) {
	done := make(chan struct{})
	c.cleaning[key] = done
	c.pending = append(c.pending, pendingRemoval{key: key, cause: cause, done: done})
}

// unlock releases mu and then delivers the removals queued while it was held.
func (c *Cache[V]) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	c.deliver(pending)
}

func (c *Cache[V]) deliver(pending []pendingRemoval) {
	for _, r := range pending {
		c.notify(r)
	}
}

func (c *Cache[V]) notify(r pendingRemoval) {
	defer func() {
		c.mu.Lock()
		if c.cleaning[r.key] == r.done {
			delete(c.cleaning, r.key)
		}
		c.mu.Unlock()
		close(r.done)
	}()

	c.metrics.RecordEviction(r.cause.String())
	c.logger.Debug(context.Background(), "removed",
		adapters.Field{Key: "key", Value: r.key},
		adapters.Field{Key: "cause", Value: r.cause.String()})
	if c.onEvict != nil {
		c.onEvict(r.key, r.cause)
	}
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	if c.ttl > 0 && now.Sub(e.created) > c.ttl {
		return true
	}
	if c.tti > 0 && now.Sub(e.accessed) > c.tti {
		return true
	}
	return false
}

// Peek returns a live value without refreshing its idle time. It never
// populates and never removes.
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if c.expired(e, c.clock.Now()) {
		return zero, false
	}
	return e.value, true
}

// Contains reports whether key holds a live value.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Peek(key)
	return ok
}

// Invalidate removes key and reports whether it was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(elem, Explicit)
	return true
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.unlock()
	c.clearLocked()
}

func (c *Cache[V]) clearLocked() {
	for elem := c.lru.Back(); elem != nil; elem = c.lru.Back() {
		c.removeLocked(elem, Cleared)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the stored keys from most to least recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[V]).key)
	}
	return keys
}

// Cleanup removes every expired entry now and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.unlock()
	now := c.clock.Now()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*entry[V]), now) {
			c.removeLocked(elem, Expired)
			removed++
		}
		elem = prev
	}
	return removed
}

// Close stops the background sweep and clears the cache. It returns once
// every removal listener running at that point, including those started by
// other goroutines, has returned. Later calls to Get fail with
// common.ErrCacheClosed.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.sweepDone != nil {
			<-c.sweepDone
		}
		c.mu.Lock()
		c.closed = true
		c.clearLocked()
		c.unlock()

		c.mu.Lock()
		running := make([]chan struct{}, 0, len(c.cleaning))
		for _, done := range c.cleaning {
			running = append(running, done)
		}
		c.mu.Unlock()
		for _, done := range running {
			<-done
		}
	})
}

func (c *Cache[V]) runCleanup(interval time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.logger.Debug(context.Background(), "expired entries swept",
					adapters.Field{Key: "count", Value: n})
			}
		case <-c.stopCh:
			return
		}
	}
}
