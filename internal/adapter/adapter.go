package adapter

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/auth"
	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/internal/circuit"
	"github.com/gdrivefs/gdrivefs/internal/config"
	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/internal/fuse"
	"github.com/gdrivefs/gdrivefs/internal/metrics"
	"github.com/gdrivefs/gdrivefs/internal/storage/gdrive"
	"github.com/gdrivefs/gdrivefs/internal/storage/memory"
	"github.com/gdrivefs/gdrivefs/internal/storage/resilient"
	"github.com/gdrivefs/gdrivefs/internal/storage/s3"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/retry"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// MountFactory builds the mount surface for a filesystem.
type MountFactory func(fsys filesystem.Filesystem, config *fuse.MountConfig, logger *zap.Logger) fuse.PlatformFileSystem

// Adapter wires storage, cache, filesystem and mount together
type Adapter struct {
	mu sync.Mutex

	storageURI string
	mountPoint string
	config     *config.Configuration
	target     config.StorageTarget
	logger     *zap.Logger

	backend    types.RemoteClient
	remote     *resilient.Client
	cache      *cache.MetadataCache
	filesystem *filesystem.Adapter
	metrics    *metrics.Collector
	mount      fuse.PlatformFileSystem

	mountFactory MountFactory
	started      bool
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the root logger; components get named children.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithBackend uses client instead of building one from the storage URI.
func WithBackend(client types.RemoteClient) Option {
	return func(a *Adapter) {
		a.backend = client
	}
}

// WithMountFactory replaces the platform mount surface.
func WithMountFactory(factory MountFactory) Option {
	return func(a *Adapter) {
		a.mountFactory = factory
	}
}

// New creates a new gdrivefs adapter instance. A non-empty storageURI
// overrides the configured one.
func New(ctx context.Context, storageURI, mountPoint string, cfg *config.Configuration, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if storageURI != "" {
		cfg.Storage.URI = storageURI
	}
	if mountPoint != "" {
		cfg.Mount.MountPoint = mountPoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	target, err := config.ParseStorageURI(cfg.Storage.URI)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		storageURI:   cfg.Storage.URI,
		mountPoint:   cfg.Mount.MountPoint,
		config:       cfg,
		target:       target,
		logger:       zap.NewNop(),
		mountFactory: fuse.CreatePlatformMountManager,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start builds every component and mounts the filesystem
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.NewError(errors.ErrCodeMountFailed, "adapter already started").WithComponent("adapter")
	}
	if a.mountPoint == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "mount point is required").WithComponent("adapter")
	}

	a.logger.Info("starting gdrivefs",
		zap.String("storage", a.storageURI),
		zap.String("mount_point", a.mountPoint))

	if err := a.initComponents(ctx); err != nil {
		return err
	}

	if err := a.metrics.Start(ctx); err != nil {
		return err
	}

	a.mount = a.mountFactory(a.filesystem, &fuse.MountConfig{
		MountPoint:   a.mountPoint,
		FSName:       a.config.Mount.FSName,
		AllowOther:   a.config.Mount.AllowOther,
		Debug:        a.config.Mount.Debug,
		AttrTimeout:  a.config.Mount.AttrTimeout,
		EntryTimeout: a.config.Mount.EntryTimeout,
	}, a.logger.Named("fuse"))

	if err := a.mount.Mount(ctx); err != nil {
		_ = a.metrics.Stop(ctx)
		return err
	}

	a.started = true
	a.logger.Info("gdrivefs started")
	return nil
}

// Stop unmounts the filesystem and stops the metrics server
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.logger.Info("stopping gdrivefs")

	var firstErr error
	if a.mount != nil && a.mount.IsMounted() {
		if err := a.mount.Unmount(); err != nil {
			firstErr = err
		}
	}
	if err := a.metrics.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	a.started = false
	if firstErr == nil {
		a.logger.Info("gdrivefs stopped")
	}
	return firstErr
}

// Wait blocks until the mount is served no longer
func (a *Adapter) Wait() {
	a.mu.Lock()
	mount := a.mount
	a.mu.Unlock()
	if mount != nil {
		mount.Wait()
	}
}

// Filesystem returns the filesystem adapter, or nil before Start.
func (a *Adapter) Filesystem() *filesystem.Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filesystem
}

// Metrics returns the metrics collector, or nil before Start.
func (a *Adapter) Metrics() *metrics.Collector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Target returns the parsed storage URI.
func (a *Adapter) Target() config.StorageTarget {
	return a.target
}

func (a *Adapter) initComponents(ctx context.Context) error {
	port := a.config.Global.MetricsPort
	if port == 0 {
		port = -1
	}
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      port,
		Path:      "/metrics",
		Namespace: "gdrivefs",
	}, a.logger.Named("metrics"))
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	a.metrics = collector

	if a.backend == nil {
		backend, err := a.newBackend(ctx)
		if err != nil {
			return err
		}
		a.backend = backend
	}

	a.remote = a.newResilient(a.backend)
	a.cache = cache.NewMetadataCache(cache.Config{
		TTL:        a.config.Cache.TTL,
		ListingTTL: a.config.Cache.ListingTTL,
	})
	a.filesystem = filesystem.New(a.remote, a.cache, filesystem.Config{
		LegacyReads: a.config.Filesystem.LegacyReads,
		AllowBinary: a.config.Filesystem.AllowBinary,
	},
		filesystem.WithLogger(a.logger.Named("filesystem")),
		filesystem.WithMetrics(a.metrics))
	return nil
}

func (a *Adapter) newBackend(ctx context.Context) (types.RemoteClient, error) {
	logger := a.logger.Named("storage")

	switch a.target.Scheme {
	case config.SchemeMemory:
		return memory.New(), nil

	case config.SchemeS3:
		s3cfg := s3.NewDefaultConfig()
		s3cfg.Region = a.config.Storage.S3.Region
		s3cfg.Endpoint = a.config.Storage.S3.Endpoint
		s3cfg.AccessKeyID = a.config.Storage.S3.AccessKeyID
		s3cfg.SecretAccessKey = a.config.Storage.S3.SecretAccessKey
		s3cfg.ForcePathStyle = a.config.Storage.S3.ForcePathStyle
		return s3.NewBackend(ctx, a.target.Bucket, a.target.Prefix, s3cfg, s3.WithLogger(logger))

	case config.SchemeGDrive:
		authenticator, err := NewAuthenticator(a.config, a.logger)
		if err != nil {
			return nil, err
		}
		httpClient, err := authenticator.HTTPClient(ctx)
		if err != nil {
			return nil, err
		}
		return gdrive.NewClient(ctx, httpClient, logger)

	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported storage scheme %q", a.target.Scheme)).WithComponent("adapter")
	}
}

func (a *Adapter) newResilient(backend types.RemoteClient) *resilient.Client {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.config.Network.Retry.MaxAttempts
	rc.InitialDelay = a.config.Network.Retry.BaseDelay
	rc.MaxDelay = a.config.Network.Retry.MaxDelay

	opts := []resilient.Option{
		resilient.WithLogger(a.logger.Named("remote")),
		resilient.WithMetrics(a.metrics),
	}
	if cb := a.config.Network.CircuitBreaker; cb.Enabled {
		opts = append(opts, resilient.WithBreaker(circuit.NewCircuitBreaker("remote", circuit.Config{
			FailureThreshold: safeUint32(cb.FailureThreshold),
			Timeout:          cb.Timeout,
		})))
	}
	return resilient.New(backend, rc, opts...)
}

// NewAuthenticator builds the Drive authenticator from the storage settings.
func NewAuthenticator(cfg *config.Configuration, logger *zap.Logger, opts ...auth.Option) (*auth.Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]auth.Option{auth.WithLogger(logger.Named("auth"))}, opts...)
	return auth.New(auth.Config{
		CredentialsFile: config.ExpandPath(cfg.Storage.GDrive.CredentialsFile),
		TokenFile:       config.ExpandPath(cfg.Storage.GDrive.TokenFile),
		ListenAddr:      cfg.Storage.GDrive.AuthListen,
	}, opts...)
}

func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
