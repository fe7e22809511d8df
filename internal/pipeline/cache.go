package pipeline

import (
	"sync"
	"time"

	"epipulse/internal/config"
	"epipulse/internal/dataset"
)

// snapshotEntry is one cached processed dataset with its ingestion stats.
type snapshotEntry struct {
	ds      *dataset.Dataset
	stats   *dataset.RunStats
	addedAt time.Time
}

// SnapshotCache holds immutable processed-dataset snapshots keyed by the
// requested date window, so repeated report calls over the same window skip
// ingestion. Entries expire by TTL and are evicted lazily; the entry count
// is bounded by evicting the oldest entry on insert. Both Get and Put work
// on clones: a caller can never mutate a cached snapshot.
type SnapshotCache struct {
	mu      sync.Mutex
	cfg     config.CacheConfig
	entries map[string]*snapshotEntry
	now     func() time.Time
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache(cfg config.CacheConfig) *SnapshotCache {
	return &SnapshotCache{
		cfg:     cfg,
		entries: make(map[string]*snapshotEntry),
		now:     time.Now,
	}
}

// Get returns a clone of the cached snapshot for the window, if present and
// fresh.
func (c *SnapshotCache) Get(window dataset.DateWindow) (*dataset.Dataset, *dataset.RunStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := window.String()
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil, false
	}
	if c.now().Sub(entry.addedAt) > c.cfg.TTL {
		delete(c.entries, key)
		return nil, nil, false
	}
	return entry.ds.Clone(), cloneStats(entry.stats), true
}

// Put stores a clone of the snapshot for the window, evicting the oldest
// entry when the cache is full.
func (c *SnapshotCache) Put(window dataset.DateWindow, ds *dataset.Dataset, stats *dataset.RunStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}

	c.entries[window.String()] = &snapshotEntry{
		ds:      ds.Clone(),
		stats:   cloneStats(stats),
		addedAt: c.now(),
	}
}

// Len returns the current entry count.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SnapshotCache) evictExpiredLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.addedAt) > c.cfg.TTL {
			delete(c.entries, key)
		}
	}
}

func (c *SnapshotCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.addedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.addedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cloneStats(stats *dataset.RunStats) *dataset.RunStats {
	out := dataset.NewRunStats()
	out.Merge(stats)
	return out
}
