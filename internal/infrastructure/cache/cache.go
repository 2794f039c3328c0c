// Package cache provides the in-memory caching layer that shields the
// Supabase backend from the editor's read-heavy workload.
// This file implements a generic in-memory cache with LRU eviction.
package cache

import (
	"container/list"
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCleanupInterval is how often the background reaper sweeps
// expired entries when no interval is configured.
const DefaultCleanupInterval = 60 * time.Second

// Options configures a Cache instance. Tuning is fixed at construction
// and never changes for the life of the process.
type Options[V any] struct {
	// DefaultTTL applies to Set calls that pass a non-positive TTL.
	DefaultTTL time.Duration
	// MaxBytes is the soft byte budget. Entry sizes are estimates, so
	// this is a capacity signal, not a hard memory bound.
	MaxBytes int64
	// MaxEntries caps the number of live entries.
	MaxEntries int
	// CleanupInterval controls the background reaper cadence.
	CleanupInterval time.Duration
	// OnEvict, when set, is called after an entry leaves the cache
	// through Delete, eviction, expiry or pattern invalidation.
	OnEvict func(key string, value V)
	// Clone, when set, is applied on Set and Get so callers and the
	// cache never share backing storage. Required for reference-typed
	// values; mutating a returned value must not change what the next
	// read sees.
	Clone func(V) V
}

// Cache is an in-memory store with LRU eviction and TTL support.
// It is safe for concurrent use and suitable for single-instance
// deployments; entries never leave the process.
//
// Key Features:
//   - LRU (Least Recently Used) eviction policy
//   - Per-item TTL support
//   - Regex-based cache invalidation
//   - Byte budget and entry count limits
//   - Hit rate statistics
//   - Thread-safe operations
type Cache[V any] struct {
	mu          sync.Mutex
	name        string
	entries     map[string]*entry[V]
	lruList     *list.List
	opts        Options[V]
	currentSize int64

	// Statistics
	hits      int64
	misses    int64
	evictions int64

	stopReaper chan struct{}
	destroyed  bool

	logger *zap.Logger
}

// entry is a single cached value. lastAccessed feeds the stats surface;
// recency ordering itself lives in the LRU list.
type entry[V any] struct {
	key          string
	value        V
	size         int64
	expiresAt    time.Time
	lastAccessed time.Time
	lruElement   *list.Element
}

// New creates a cache with the given tuning and starts its background
// reaper. Callers own the returned instance and must Destroy it to stop
// the reaper.
func New[V any](name string, opts Options[V], logger *zap.Logger) *Cache[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}

	c := &Cache[V]{
		name:       name,
		entries:    make(map[string]*entry[V]),
		lruList:    list.New(),
		opts:       opts,
		stopReaper: make(chan struct{}),
		logger:     logger.Named("cache." + name),
	}

	go c.reaperLoop(opts.CleanupInterval)

	return c
}

// Get retrieves a value from the cache. Expired entries are removed on
// access and count as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()

	e, exists := c.entries[key]
	if !exists {
		c.misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		c.misses++
		c.mu.Unlock()
		c.notifyEvict(e)
		var zero V
		return zero, false
	}

	e.lastAccessed = time.Now()
	c.lruList.MoveToFront(e.lruElement)
	c.hits++
	value := e.value
	c.mu.Unlock()

	if c.opts.Clone != nil {
		value = c.opts.Clone(value)
	}
	return value, true
}

// Set stores a value. A non-positive ttl uses the cache's default.
// Least-recently-used entries are evicted until both the byte budget and
// the entry cap hold; an oversized value is still admitted once every
// older entry is gone.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	if c.opts.Clone != nil {
		// Store a private copy; the caller keeps its own reference.
		value = c.opts.Clone(value)
	}
	size := EstimateSize(value) + int64(len(key))

	c.mu.Lock()

	if existing, exists := c.entries[key]; exists {
		c.removeEntry(existing)
	}

	var evicted []*entry[V]
	for c.lruList.Len() > 0 && (c.overBytes(size) || c.overEntries()) {
		oldest := c.lruList.Back()
		old := oldest.Value.(*entry[V])
		c.removeEntry(old)
		c.evictions++
		evicted = append(evicted, old)
	}

	now := time.Now()
	e := &entry[V]{
		key:          key,
		value:        value,
		size:         size,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	e.lruElement = c.lruList.PushFront(e)
	c.entries[key] = e
	c.currentSize += size

	c.mu.Unlock()

	for _, old := range evicted {
		c.notifyEvict(old)
	}
}

// Delete removes a key and reports whether something was removed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	e, exists := c.entries[key]
	if exists {
		c.removeEntry(e)
	}
	c.mu.Unlock()

	if exists {
		c.notifyEvict(e)
	}
	return exists
}

// Has reports whether an unexpired entry exists for key. Unlike Get it
// does not refresh recency or touch the hit/miss counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()

	e, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		return false
	}
	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		c.mu.Unlock()
		c.notifyEvict(e)
		return false
	}

	c.mu.Unlock()
	return true
}

// GetOrSet returns the cached value for key, invoking factory and
// caching its result on a miss. Concurrent callers missing on the same
// key each run their own factory; de-duplication is the caller's
// concern (the service layer uses singleflight for that).
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (V, error), ttl time.Duration) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := factory(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, value, ttl)
	return value, nil
}

// InvalidatePattern deletes every key matching re and returns how many
// entries were removed. Used for bulk per-user invalidation.
func (c *Cache[V]) InvalidatePattern(re *regexp.Regexp) int {
	c.mu.Lock()

	matched := make([]*entry[V], 0)
	for key, e := range c.entries {
		if re.MatchString(key) {
			matched = append(matched, e)
		}
	}
	for _, e := range matched {
		c.removeEntry(e)
	}

	c.mu.Unlock()

	for _, e := range matched {
		c.notifyEvict(e)
	}

	if len(matched) > 0 {
		c.logger.Debug("Invalidated cache entries",
			zap.String("pattern", re.String()),
			zap.Int("count", len(matched)),
		)
	}

	return len(matched)
}

// Stats holds a point-in-time snapshot of cache statistics.
type Stats struct {
	Name        string  `json:"name"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	HitRate     float64 `json:"hit_rate"`
	MemoryUsage float64 `json:"memory_usage"`
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	memoryUsage := float64(0)
	if c.opts.MaxBytes > 0 {
		memoryUsage = float64(c.currentSize) / float64(c.opts.MaxBytes)
	}

	return Stats{
		Name:        c.name,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Entries:     len(c.entries),
		Size:        c.currentSize,
		HitRate:     hitRate,
		MemoryUsage: memoryUsage,
	}
}

// Clear empties the cache and resets all counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
	c.lruList.Init()
	c.currentSize = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Destroy clears the cache and stops the background reaper. Safe to
// call more than once.
func (c *Cache[V]) Destroy() {
	c.mu.Lock()
	if !c.destroyed {
		c.destroyed = true
		close(c.stopReaper)
	}
	c.entries = make(map[string]*entry[V])
	c.lruList.Init()
	c.currentSize = 0
	c.mu.Unlock()
}

// overBytes reports whether admitting incoming bytes would break the
// byte budget. A non-positive budget means unlimited.
func (c *Cache[V]) overBytes(incoming int64) bool {
	return c.opts.MaxBytes > 0 && c.currentSize+incoming > c.opts.MaxBytes
}

// overEntries reports whether the entry cap is full. A non-positive cap
// means unlimited.
func (c *Cache[V]) overEntries() bool {
	return c.opts.MaxEntries > 0 && len(c.entries) >= c.opts.MaxEntries
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *Cache[V]) removeEntry(e *entry[V]) {
	if e.lruElement != nil {
		c.lruList.Remove(e.lruElement)
		e.lruElement = nil
	}
	delete(c.entries, e.key)
	c.currentSize -= e.size
}

// notifyEvict runs the eviction callback outside the lock so the
// callback may call back into the cache.
func (c *Cache[V]) notifyEvict(e *entry[V]) {
	if c.opts.OnEvict != nil {
		c.opts.OnEvict(e.key, e.value)
	}
}

func (c *Cache[V]) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopReaper:
			return
		case <-ticker.C:
			c.reapExpired()
		}
	}
}

// reapExpired removes expired entries independent of access patterns,
// bounding memory for keys that are never re-read after expiry.
func (c *Cache[V]) reapExpired() {
	c.mu.Lock()

	now := time.Now()
	expired := make([]*entry[V], 0)
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeEntry(e)
	}

	c.mu.Unlock()

	for _, e := range expired {
		c.notifyEvict(e)
	}

	if len(expired) > 0 {
		c.logger.Debug("Reaped expired cache entries",
			zap.Int("count", len(expired)),
		)
	}
}
