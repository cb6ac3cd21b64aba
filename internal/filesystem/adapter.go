package filesystem

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/internal/resolver"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Adapter translates filesystem operations into cache lookups and remote
// calls. All operations are serialized by a single mutex, including the
// fetch, splice and upload sequence of Write.
type Adapter struct {
	mu sync.Mutex

	config   Config
	client   types.RemoteClient
	cache    *cache.MetadataCache
	resolver *resolver.Resolver
	metrics  types.MetricsCollector
	logger   *zap.Logger
}

var _ Filesystem = (*Adapter)(nil)

// Option configures an Adapter
type Option func(*adapterOptions)

type adapterOptions struct {
	logger  *zap.Logger
	metrics types.MetricsCollector
	started time.Time
}

// WithLogger sets the adapter logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *adapterOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *adapterOptions) {
		o.metrics = m
	}
}

// WithStartTime sets the creation time reported for the root.
func WithStartTime(t time.Time) Option {
	return func(o *adapterOptions) {
		o.started = t
	}
}

// New creates an adapter that owns c and talks to client.
func New(client types.RemoteClient, c *cache.MetadataCache, config Config, opts ...Option) *Adapter {
	o := adapterOptions{
		logger:  zap.NewNop(),
		started: c.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ropts := []resolver.Option{
		resolver.WithLogger(o.logger.Named("resolver")),
		resolver.WithStartTime(o.started),
	}
	if o.metrics != nil {
		ropts = append(ropts, resolver.WithMetrics(o.metrics))
	}

	return &Adapter{
		config:   config,
		client:   client,
		cache:    c,
		resolver: resolver.New(client, c, ropts...),
		metrics:  o.metrics,
		logger:   o.logger,
	}
}

// Getattr returns the attributes of path.
func (a *Adapter) Getattr(ctx context.Context, path string) (attr types.Attr, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("getattr", path, time.Now(), &err)

	_, entry, err := a.resolver.Lookup(ctx, path)
	if err != nil {
		return types.Attr{}, err
	}
	return entry.Attr(), nil
}

// Readdir returns ".", ".." and the names of the children of path. Children
// come from the cache once the directory has been listed remotely.
func (a *Adapter) Readdir(ctx context.Context, path string) (names []string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("readdir", path, time.Now(), &err)

	names = []string{".", ".."}

	key, dir, err := a.resolver.Cached(path)
	if err != nil {
		if errors.IsNotFound(err) {
			return names, nil
		}
		return nil, err
	}

	if a.cache.ListingStale(dir) {
		if err := a.resolver.Expand(ctx, key, dir); err != nil {
			return nil, err
		}
	}

	for _, child := range a.cache.Children(key) {
		if entry, ok := a.cache.Peek(child); ok {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

// Create creates an empty remote file at path.
func (a *Adapter) Create(ctx context.Context, path string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("create", path, time.Now(), &err)

	return a.createObject(ctx, path, "")
}

// Mkdir creates a remote folder at path.
func (a *Adapter) Mkdir(ctx context.Context, path string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("mkdir", path, time.Now(), &err)

	return a.createObject(ctx, path, types.FolderMimeType)
}

func (a *Adapter) createObject(ctx context.Context, path, mimeType string) error {
	key, err := resolver.Clean(path)
	if err != nil {
		return err
	}
	if key == cache.RootKey {
		return errors.NewError(errors.ErrCodeInvalidPath, "root already exists").
			WithComponent("filesystem").
			WithContext("path", key)
	}

	parentKey, leaf := resolver.Split(key)
	parent, err := a.resolver.Parent(parentKey)
	if err != nil {
		return err
	}

	obj, err := a.client.CreateObject(ctx, leaf, parent.RemoteID, mimeType)
	if err != nil {
		return errors.AsRemote(types.CallCreateObject, err)
	}

	entry := resolver.EntryFromObject(obj)
	entry.Name = resolver.SanitizeName(leaf)
	entry.Handle = types.NewHandle(*obj)
	if entry.IsDir() {
		a.cache.MarkExpanded(entry)
	}
	a.cache.Put(resolver.ChildKey(parentKey, leaf), entry)

	a.logger.Debug("created object",
		zap.String("path", key),
		zap.String("id", obj.ID),
		zap.Bool("folder", entry.IsDir()))
	return nil
}

// Read returns content of path. In range mode it returns up to size bytes
// starting at offset; in legacy mode it returns the whole content for
// offset 0 and nothing otherwise.
func (a *Adapter) Read(ctx context.Context, path string, size int, offset int64) (data []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("read", path, time.Now(), &err)

	if a.config.LegacyReads && offset > 0 {
		return nil, nil
	}

	_, entry, err := a.resolver.Cached(path)
	if err != nil {
		return nil, err
	}

	content, err := a.client.GetContent(ctx, entry.RemoteID)
	if err != nil {
		return nil, errors.AsRemote(types.CallGetContent, err)
	}
	if !a.config.AllowBinary && !utf8.Valid(content) {
		a.logger.Debug("content is not text", zap.String("path", path))
		content = []byte(NotTextMarker)
	}

	if a.config.LegacyReads {
		return content, nil
	}
	return sliceRange(content, size, offset), nil
}

// Write splices data into the content of path at offset and uploads the
// result. It returns the length of the new content.
func (a *Adapter) Write(ctx context.Context, path string, data []byte, offset int64) (n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("write", path, time.Now(), &err)

	key, entry, err := a.resolver.Cached(path)
	if err != nil {
		return 0, err
	}

	var current []byte
	if entry.Handle != nil {
		current = entry.Handle.Content
	} else {
		current, err = a.client.GetContent(ctx, entry.RemoteID)
		if err != nil {
			return 0, errors.AsRemote(types.CallGetContent, err)
		}
	}

	updated := Splice(current, data, offset)
	if err := a.client.SetContent(ctx, entry.RemoteID, updated); err != nil {
		return 0, errors.AsRemote(types.CallSetContent, err)
	}

	if entry.Handle != nil {
		entry.Handle.Content = updated
	}
	entry.Size = int64(len(updated))
	a.cache.Invalidate(key)

	return len(updated), nil
}

// Rmdir moves the object at path to the trash and forgets its subtree.
func (a *Adapter) Rmdir(ctx context.Context, path string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("rmdir", path, time.Now(), &err)

	return a.trash(ctx, path)
}

// Unlink behaves like Rmdir.
func (a *Adapter) Unlink(ctx context.Context, path string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.observe("unlink", path, time.Now(), &err)

	return a.trash(ctx, path)
}

func (a *Adapter) trash(ctx context.Context, path string) error {
	key, entry, err := a.resolver.Cached(path)
	if err != nil {
		return err
	}
	if entry.IsRoot() {
		return errors.NewError(errors.ErrCodeInvalidPath, "cannot remove the root").
			WithComponent("filesystem").
			WithContext("path", key)
	}

	if err := a.client.Trash(ctx, entry.RemoteID); err != nil {
		return errors.AsRemote(types.CallTrash, err)
	}

	removed := a.cache.DeleteTree(key)
	a.logger.Debug("trashed object",
		zap.String("path", key),
		zap.String("id", entry.RemoteID),
		zap.Int("cache_entries_removed", removed))
	return nil
}

// Truncate is accepted and ignored.
func (a *Adapter) Truncate(ctx context.Context, path string, length int64) error {
	a.logger.Debug("truncate ignored", zap.String("path", path), zap.Int64("length", length))
	return nil
}

// Open is accepted and ignored.
func (a *Adapter) Open(ctx context.Context, path string, flags int) error {
	return nil
}

// CacheStats returns metadata cache statistics.
func (a *Adapter) CacheStats() types.CacheStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.cache.Stats()
}

func (a *Adapter) observe(op, path string, start time.Time, errp *error) {
	duration := time.Since(start)
	err := *errp

	if a.metrics != nil {
		a.metrics.RecordOperation(op, duration, err == nil)
		a.metrics.SetCacheEntries(a.cache.Len())
	}

	switch {
	case err == nil:
		a.logger.Debug(op, zap.String("path", path), zap.Duration("duration", duration))
	case errors.IsNotFound(err):
		a.logger.Debug(op+" not found", zap.String("path", path))
	default:
		a.logger.Warn(op+" failed",
			zap.String("path", path),
			zap.Duration("duration", duration),
			zap.Error(err))
	}
}

// Splice replaces len(data) bytes of current starting at offset. Content
// past the written range is kept; an offset past the end appends without
// padding.
func Splice(current, data []byte, offset int64) []byte {
	size := int64(len(current))
	start := min(max(offset, 0), size)
	end := min(max(offset, 0)+int64(len(data)), size)

	out := make([]byte, 0, start+int64(len(data))+size-end)
	out = append(out, current[:start]...)
	out = append(out, data...)
	out = append(out, current[end:]...)
	return out
}

func sliceRange(content []byte, size int, offset int64) []byte {
	if offset < 0 || offset >= int64(len(content)) || size <= 0 {
		return []byte{}
	}
	end := offset + int64(size)
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return content[offset:end]
}
