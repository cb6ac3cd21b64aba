package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Resolver maps paths to cached entries, consulting the remote listing API
// on a cache miss. It is not safe for concurrent use.
type Resolver struct {
	client  types.RemoteClient
	cache   *cache.MetadataCache
	metrics types.MetricsCollector
	logger  *zap.Logger
	started time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics sets the collector that receives cache hit and miss events.
func WithMetrics(m types.MetricsCollector) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithStartTime sets the creation time reported for the root.
func WithStartTime(t time.Time) Option {
	return func(r *Resolver) {
		r.started = t
	}
}

// New creates a resolver over client and c.
func New(client types.RemoteClient, c *cache.MetadataCache, opts ...Option) *Resolver {
	r := &Resolver{
		client:  client,
		cache:   c,
		logger:  zap.NewNop(),
		started: c.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the cache the resolver writes to.
func (r *Resolver) Cache() *cache.MetadataCache {
	return r.cache
}

// Lookup resolves path to a fresh cache entry. Stale entries are refetched
// by id; uncached paths are resolved with one filtered listing of their
// parent, which must already be cached. It returns the canonical key.
func (r *Resolver) Lookup(ctx context.Context, path string) (string, *cache.CachedEntry, error) {
	key, err := Clean(path)
	if err != nil {
		return "", nil, err
	}

	if entry, ok := r.cache.Get(key); ok {
		r.recordHit(key)
		if !r.cache.Stale(entry) {
			return key, entry, nil
		}
		entry, err = r.Refresh(ctx, key, entry)
		return key, entry, err
	}
	r.recordMiss(key)

	if key == cache.RootKey {
		return key, r.root(), nil
	}

	parentKey, leaf := Split(key)
	parent, err := r.Parent(parentKey)
	if err != nil {
		return "", nil, errors.NotFound(key).WithComponent("resolver").WithOperation("lookup")
	}

	matches, err := r.client.ListChildren(ctx, parent.RemoteID, types.ListOptions{Name: leaf})
	if err != nil {
		return "", nil, errors.AsRemote(types.CallListChildren, err)
	}
	if len(matches) == 0 {
		return "", nil, errors.NotFound(key).WithComponent("resolver").WithOperation("lookup")
	}
	if len(matches) > 1 {
		r.logger.Debug("duplicate names under parent, using first",
			zap.String("path", key),
			zap.Int("matches", len(matches)))
	}

	obj, err := r.client.FetchMetadata(ctx, matches[0].ID)
	if err != nil {
		return "", nil, errors.AsRemote(types.CallFetchMetadata, err)
	}

	key, entry := r.Store(parentKey, obj, true)
	r.logger.Debug("resolved path", zap.String("path", key), zap.String("id", entry.RemoteID))
	return key, entry, nil
}

// Parent returns the cached entry for a parent key. The root is synthesized
// on first access; any other missing parent is NOT_FOUND.
func (r *Resolver) Parent(key string) (*cache.CachedEntry, error) {
	if entry, ok := r.cache.Peek(key); ok {
		return entry, nil
	}
	if key == cache.RootKey {
		return r.root(), nil
	}
	return nil, errors.NotFound(key).WithComponent("resolver")
}

// Cached returns the entry at path without any remote call.
func (r *Resolver) Cached(path string) (string, *cache.CachedEntry, error) {
	key, err := Clean(path)
	if err != nil {
		return "", nil, err
	}
	if entry, ok := r.cache.Get(key); ok {
		r.recordHit(key)
		return key, entry, nil
	}
	r.recordMiss(key)
	if key == cache.RootKey {
		return key, r.root(), nil
	}
	return "", nil, errors.NotFound(key).WithComponent("resolver")
}

// Refresh refetches entry's metadata and overwrites its cache slot. The
// local handle is dropped; the listing state is kept. An object that was
// deleted or trashed remotely is removed from the cache with its subtree
// and reported as NOT_FOUND.
func (r *Resolver) Refresh(ctx context.Context, key string, entry *cache.CachedEntry) (*cache.CachedEntry, error) {
	obj, err := r.client.FetchMetadata(ctx, entry.RemoteID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.AsRemote(types.CallFetchMetadata, err)
	}
	if err != nil || obj.Trashed {
		removed := r.cache.DeleteTree(key)
		r.logger.Debug("object gone remotely", zap.String("path", key), zap.Int("removed", removed))
		return nil, errors.NotFound(key).WithComponent("resolver").WithOperation("refresh")
	}

	fresh := EntryFromObject(obj)
	fresh.Expanded = entry.Expanded
	fresh.ExpandedAt = entry.ExpandedAt
	r.cache.MarkFetched(fresh)
	r.cache.Put(key, fresh)

	r.logger.Debug("refetched metadata", zap.String("path", key), zap.String("id", fresh.RemoteID))
	return fresh, nil
}

// Store inserts obj under parentKey using the canonical key and returns it.
// An existing entry for the same object keeps its listing state.
func (r *Resolver) Store(parentKey string, obj *types.RemoteObject, fetched bool) (string, *cache.CachedEntry) {
	key := ChildKey(parentKey, obj.Title)
	entry := EntryFromObject(obj)
	if fetched {
		r.cache.MarkFetched(entry)
	}
	if prev, ok := r.cache.Peek(key); ok && prev.RemoteID == entry.RemoteID {
		entry.Expanded = prev.Expanded
		entry.ExpandedAt = prev.ExpandedAt
	}
	r.cache.Put(key, entry)
	return key, entry
}

// Expand lists dir remotely, stores every child, drops cached children the
// remote side no longer reports and marks dir expanded.
func (r *Resolver) Expand(ctx context.Context, dirKey string, dir *cache.CachedEntry) error {
	objs, err := r.client.ListChildren(ctx, dir.RemoteID, types.ListOptions{})
	if err != nil {
		return errors.AsRemote(types.CallListChildren, err)
	}

	// the first object listed under a name owns it, as in Lookup
	seen := make(map[string]struct{}, len(objs))
	for i := range objs {
		if _, dup := seen[ChildKey(dirKey, objs[i].Title)]; dup {
			continue
		}
		key, _ := r.Store(dirKey, &objs[i], true)
		seen[key] = struct{}{}
	}

	for _, key := range r.cache.Children(dirKey) {
		if _, ok := seen[key]; !ok {
			removed := r.cache.DeleteTree(key)
			r.logger.Debug("dropped ghost entry", zap.String("path", key), zap.Int("removed", removed))
		}
	}

	r.cache.MarkExpanded(dir)
	return nil
}

func (r *Resolver) root() *cache.CachedEntry {
	if entry, ok := r.cache.Peek(cache.RootKey); ok {
		return entry
	}
	root := cache.NewRoot(r.started)
	r.cache.Put(cache.RootKey, root)
	return root
}

func (r *Resolver) recordHit(path string) {
	if r.metrics != nil {
		r.metrics.RecordCacheHit(path)
	}
}

func (r *Resolver) recordMiss(path string) {
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(path)
	}
}
