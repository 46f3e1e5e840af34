package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "avkms/cache"

// janitorInterval is how often expired entries are purged in the background.
const janitorInterval = time.Minute

// memoryCache implements an in-memory LRU token cache.
type memoryCache struct {
	logger     observability.Logger
	maxEntries int
	defaultTTL time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	bytes    int64

	hits   int64
	misses int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// memoryEntry is a single cached token.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// expired reports whether the entry has passed its expiry. A zero
// expiry never expires.
func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// newMemoryCache creates a new in-memory cache.
//
//nolint:unparam // error return is for interface consistency with other cache implementations
func newMemoryCache(cfg *config.CacheConfig, logger observability.Logger) (*memoryCache, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}

	c := &memoryCache{
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL.Duration(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}

	go c.janitorLoop()

	logger.Info("memory cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", c.defaultTTL))

	return c, nil
}

// Get retrieves a value from the cache.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("memory", "get", time.Since(start))
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		recordMiss("memory")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		atomic.AddInt64(&c.misses, 1)
		recordMiss("memory")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	// Move to front (most recently used)
	c.eviction.MoveToFront(elem)

	atomic.AddInt64(&c.hits, 1)
	recordHit("memory")

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.value)),
	)

	c.logger.Debug("cache hit",
		observability.String("key", key))

	return entry.value, nil
}

// Set stores a value in the cache.
func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("memory", "set", time.Since(start))
	}()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		old := elem.Value.(*memoryEntry)
		c.bytes += int64(len(value)) - int64(len(old.value))
		c.eviction.MoveToFront(elem)
		elem.Value = entry
		c.logger.Debug("cache updated",
			observability.String("key", key),
			observability.Duration("ttl", ttl))
		return nil
	}

	elem := c.eviction.PushFront(entry)
	c.items[key] = elem
	c.bytes += int64(len(value))

	// Evict oldest entries if over capacity
	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}

	setSize("memory", c.eviction.Len())

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", c.eviction.Len()))

	return nil
}

// Delete removes a value from the cache.
func (c *memoryCache) Delete(ctx context.Context, key string) error {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("memory", "delete", time.Since(start))
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
		setSize("memory", c.eviction.Len())
		c.logger.Debug("cache deleted",
			observability.String("key", key))
	}

	return nil
}

// Exists checks if a key exists in the cache.
func (c *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Exists",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		span.SetAttributes(attribute.Bool("cache.exists", false))
		return false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		span.SetAttributes(attribute.Bool("cache.exists", false))
		return false, nil
	}

	span.SetAttributes(attribute.Bool("cache.exists", true))
	return true, nil
}

// Close stops the janitor goroutine and drops all entries. It is safe
// to call more than once.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		defer c.mu.Unlock()

		c.items = make(map[string]*list.Element)
		c.eviction.Init()
		c.bytes = 0

		c.logger.Info("memory cache closed")
	})

	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	size := int64(c.eviction.Len())
	bytes := c.bytes
	c.mu.Unlock()

	return CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
		Bytes:  bytes,
	}
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *memoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem != nil {
		c.removeElement(elem)
		recordEviction("memory")
		c.logger.Debug("cache evicted oldest entry")
	}
}

// removeElement removes an element from the cache.
// Must be called with lock held.
func (c *memoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	c.bytes -= int64(len(entry.value))
	delete(c.items, entry.key)
}

// janitorLoop periodically removes expired entries.
func (c *memoryCache) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// purgeExpired removes expired entries under a single write lock so
// entries cannot change between scanning and removal.
func (c *memoryCache) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*memoryEntry).expired(now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}

	if len(toRemove) > 0 {
		setSize("memory", c.eviction.Len())
		c.logger.Debug("cache cleanup completed",
			observability.Int("removed", len(toRemove)))
	}
}
