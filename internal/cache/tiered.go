package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/clock/system"
	"github.com/JakeFAU/shotapi/internal/metrics"
	"github.com/JakeFAU/shotapi/internal/storage"
)

// DefaultCapacity is the L1 entry bound when none is configured.
const DefaultCapacity = 100

// Options configures a Tiered cache.
type Options struct {
	// Capacity bounds the number of L1 entries.
	Capacity int
	Clock    capture.Clock
	Logger   *zap.Logger
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

// Tiered is the two-layer capture cache. Get and Set hold the read lock so they proceed concurrently;
// Clear holds the write lock so no lookup or store interleaves with it.
type Tiered struct {
	mu       sync.RWMutex
	l1       *lru
	l2       storage.Provider
	capacity int
	clock    capture.Clock
	logger   *zap.Logger
}

// New builds a Tiered cache over the durable provider. A nil provider yields a memory-only cache.
func New(l2 storage.Provider, opts Options) *Tiered {
	if l2 == nil {
		l2 = storage.NoOpProvider{}
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tiered{
		l1:       newLRU(opts.Capacity),
		l2:       l2,
		capacity: opts.Capacity,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("cache"),
	}
}

// Get returns a fresh entry for key from L1, falling back to L2. L2 hits are promoted into L1 with their
// original StoredAt so they expire at the same instant in both layers.
func (c *Tiered) Get(ctx context.Context, key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	if entry, ok := c.l1.get(key, now); ok {
		metrics.ObserveCacheLookup("l1", "hit")
		return entry, true
	}
	metrics.ObserveCacheLookup("l1", "miss")

	data, err := c.l2.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.ObserveCacheLookup("l2", "miss")
		return Entry{}, false
	}
	if err != nil {
		metrics.ObserveCacheError("get")
		c.logger.Warn("durable cache read failed", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	entry, err := decodeEntry(key, data)
	if err != nil {
		metrics.ObserveCacheError("decode")
		c.logger.Warn("discarding unreadable cache record", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	if entry.Expired(now) {
		metrics.ObserveCacheLookup("l2", "expired")
		return Entry{}, false
	}
	metrics.ObserveCacheLookup("l2", "hit")
	c.promote(entry, now)
	return entry, true
}

// Set stores payload under key in L1 and then synchronously in L2. A non-positive ttl stores nothing.
// An L2 failure leaves the entry memory-only and returns an error wrapping capture.ErrCacheIO; callers
// log it and carry on.
func (c *Tiered) Set(ctx context.Context, key string, payload []byte, kind capture.ContentKind, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	entry := Entry{Key: key, Payload: payload, Kind: kind, StoredAt: now, TTL: ttl}
	c.promote(entry, now)

	data, err := encodeEntry(entry)
	if err == nil {
		err = c.l2.Put(ctx, key, data)
	}
	if err != nil {
		metrics.ObserveCacheError("set")
		return fmt.Errorf("%w: store %s: %w", capture.ErrCacheIO, key, err)
	}
	c.logger.Debug("cached capture",
		zap.String("key", key),
		zap.String("kind", string(kind)),
		zap.String("size", humanize.Bytes(uint64(len(payload)))),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// Clear empties both layers. It is idempotent.
func (c *Tiered) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1.reset()
	metrics.SetCacheEntries(0)
	if err := c.l2.Clear(ctx); err != nil {
		metrics.ObserveCacheError("clear")
		return fmt.Errorf("%w: clear durable store: %w", capture.ErrCacheIO, err)
	}
	c.logger.Info("cache cleared")
	return nil
}

// Sweep drops expired L1 entries and returns how many were removed.
func (c *Tiered) Sweep(now time.Time) int {
	n := c.l1.purgeExpired(now)
	metrics.SetCacheEntries(c.l1.len())
	return n
}

// Prune deletes expired or unreadable L2 records and returns how many were removed. A record rewritten
// between the read and the delete is lost, which only costs a later miss.
func (c *Tiered) Prune(ctx context.Context) (int, error) {
	keys, err := c.l2.Keys(ctx)
	if err != nil {
		metrics.ObserveCacheError("prune")
		return 0, fmt.Errorf("%w: list durable records: %w", capture.ErrCacheIO, err)
	}
	pruned := 0
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return pruned, fmt.Errorf("prune cancelled: %w", err)
		}
		if c.pruneOne(ctx, key, &errs) {
			pruned++
		}
	}
	if len(errs) > 0 {
		metrics.ObserveCacheError("prune")
		return pruned, fmt.Errorf("%w: %w", capture.ErrCacheIO, errors.Join(errs...))
	}
	return pruned, nil
}

func (c *Tiered) pruneOne(ctx context.Context, key string, errs *[]error) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := c.l2.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		*errs = append(*errs, err)
		return false
	}
	entry, err := decodeEntry(key, data)
	if err == nil && !entry.Expired(c.clock.Now()) {
		return false
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		*errs = append(*errs, err)
		return false
	}
	c.l1.remove(key)
	return true
}

// Stats reports the current L1 occupancy.
func (c *Tiered) Stats() Stats {
	return Stats{Entries: c.l1.len(), Capacity: c.capacity}
}

func (c *Tiered) promote(entry Entry, now time.Time) {
	if evicted := c.l1.add(entry, now); evicted > 0 {
		c.logger.Debug("evicted cache entries", zap.Int("count", evicted))
	}
	metrics.SetCacheEntries(c.l1.len())
}
