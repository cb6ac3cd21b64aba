package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Config represents metadata cache configuration
type Config struct {
	// TTL is how long fetched metadata stays valid. Zero never expires.
	TTL time.Duration `yaml:"ttl"`

	// ListingTTL is how long a directory listing stays valid. Zero never expires.
	ListingTTL time.Duration `yaml:"listing_ttl"`
}

// MetadataCache maps absolute paths to cached entries. It is not safe for
// concurrent use; the owner serializes access.
type MetadataCache struct {
	config  Config
	entries map[string]*CachedEntry
	now     func() time.Time

	hits   uint64
	misses uint64
}

// Option configures a MetadataCache
type Option func(*MetadataCache)

// WithClock replaces the wall clock used by the staleness policy.
func WithClock(now func() time.Time) Option {
	return func(c *MetadataCache) {
		c.now = now
	}
}

// NewMetadataCache creates an empty cache.
func NewMetadataCache(config Config, opts ...Option) *MetadataCache {
	c := &MetadataCache{
		config:  config,
		entries: make(map[string]*CachedEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache clock's current time.
func (c *MetadataCache) Now() time.Time {
	return c.now()
}

// Get returns the entry at path, counting a hit or miss.
func (c *MetadataCache) Get(path string) (*CachedEntry, bool) {
	entry, ok := c.entries[path]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return entry, ok
}

// Peek returns the entry at path without touching the statistics.
func (c *MetadataCache) Peek(path string) (*CachedEntry, bool) {
	entry, ok := c.entries[path]
	return entry, ok
}

// Put stores entry at path, overwriting any existing slot.
func (c *MetadataCache) Put(path string, entry *CachedEntry) {
	c.entries[path] = entry
}

// Delete removes the entry at path.
func (c *MetadataCache) Delete(path string) {
	delete(c.entries, path)
}

// DeleteTree removes path and every entry below it. It returns the number of
// entries removed.
func (c *MetadataCache) DeleteTree(path string) int {
	removed := 0
	if _, ok := c.entries[path]; ok {
		delete(c.entries, path)
		removed++
	}
	prefix := descendantPrefix(path)
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Children returns the keys of the direct children of dir, sorted.
func (c *MetadataCache) Children(dir string) []string {
	prefix := descendantPrefix(dir)
	var keys []string
	for key := range c.entries {
		if key == dir || !strings.HasPrefix(key, prefix) {
			continue
		}
		if strings.Contains(key[len(prefix):], "/") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns every cache key, sorted.
func (c *MetadataCache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries.
func (c *MetadataCache) Len() int {
	return len(c.entries)
}

// Invalidate marks the entry at path as needing a metadata refetch. It
// reports whether an entry was present.
func (c *MetadataCache) Invalidate(path string) bool {
	entry, ok := c.entries[path]
	if !ok || entry.IsRoot() {
		return ok
	}
	entry.Fetched = false
	entry.FetchedAt = time.Time{}
	return true
}

// MarkFetched records that entry now reflects full remote metadata.
func (c *MetadataCache) MarkFetched(entry *CachedEntry) {
	entry.Fetched = true
	entry.FetchedAt = c.now()
}

// MarkExpanded records a successful remote listing of entry.
func (c *MetadataCache) MarkExpanded(entry *CachedEntry) {
	entry.Expanded = true
	entry.ExpandedAt = c.now()
}

// Stale reports whether entry's attributes must be refetched before use.
// The root is never stale.
func (c *MetadataCache) Stale(entry *CachedEntry) bool {
	if entry.IsRoot() {
		return false
	}
	if !entry.Fetched {
		return true
	}
	return c.config.TTL > 0 && c.now().Sub(entry.FetchedAt) > c.config.TTL
}

// ListingStale reports whether entry's children must be listed remotely.
func (c *MetadataCache) ListingStale(entry *CachedEntry) bool {
	if !entry.Expanded {
		return true
	}
	return c.config.ListingTTL > 0 && c.now().Sub(entry.ExpandedAt) > c.config.ListingTTL
}

// Stats returns hit, miss and size statistics.
func (c *MetadataCache) Stats() types.CacheStats {
	stats := types.CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func descendantPrefix(dir string) string {
	if dir == RootKey {
		return RootKey
	}
	return dir + "/"
}
