package adapter

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/config"
	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/internal/fuse"
	"github.com/gdrivefs/gdrivefs/internal/storage/memory"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

type fakeMount struct {
	fsys      filesystem.Filesystem
	config    *fuse.MountConfig
	mountErr  error
	mounted   bool
	unmounted int
}

func (m *fakeMount) Mount(ctx context.Context) error {
	if m.mountErr != nil {
		return m.mountErr
	}
	m.mounted = true
	return nil
}

func (m *fakeMount) Unmount() error {
	m.mounted = false
	m.unmounted++
	return nil
}

func (m *fakeMount) IsMounted() bool                  { return m.mounted }
func (m *fakeMount) Wait()                            {}
func (m *fakeMount) GetStats() *fuse.FilesystemStats { return &fuse.FilesystemStats{} }

func (m *fakeMount) factory(fsys filesystem.Filesystem, cfg *fuse.MountConfig, _ *zap.Logger) fuse.PlatformFileSystem {
	m.fsys = fsys
	m.config = cfg
	return m
}

func testConfig() *config.Configuration {
	cfg := config.NewDefault()
	cfg.Storage.URI = "memory://"
	cfg.Global.MetricsPort = 0
	cfg.Network.Retry.BaseDelay = time.Millisecond
	cfg.Network.Retry.MaxDelay = 2 * time.Millisecond
	return cfg
}

func startAdapter(t *testing.T, cfg *config.Configuration, remote *memory.Client) (*Adapter, *fakeMount) {
	t.Helper()
	mount := &fakeMount{}
	a, err := New(context.Background(), "", "/mnt/drive", cfg,
		WithBackend(remote),
		WithMountFactory(mount.factory))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a, mount
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		storageURI string
		wantErr    bool
		wantTarget config.StorageTarget
	}{
		{
			name:       "configured memory storage",
			wantTarget: config.StorageTarget{Scheme: config.SchemeMemory},
		},
		{
			name:       "s3 override",
			storageURI: "s3://bucket/team",
			wantTarget: config.StorageTarget{Scheme: config.SchemeS3, Bucket: "bucket", Prefix: "team"},
		},
		{
			name:       "gdrive override",
			storageURI: "gdrive://",
			wantTarget: config.StorageTarget{Scheme: config.SchemeGDrive},
		},
		{
			name:       "unsupported scheme",
			storageURI: "gcs://bucket",
			wantErr:    true,
		},
		{
			name:       "s3 without bucket",
			storageURI: "s3://",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), tt.storageURI, "/mnt/drive", testConfig())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidConfig, errors.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, a.Target())
			assert.Equal(t, "/mnt/drive", a.config.Mount.MountPoint)
		})
	}
}

func TestStart_RequiresMountPoint(t *testing.T) {
	a, err := New(context.Background(), "", "", testConfig(), WithBackend(memory.New()))
	require.NoError(t, err)

	err = a.Start(context.Background())
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.Code(err))
	assert.Nil(t, a.Filesystem())
}

func TestStart_WiresComponents(t *testing.T) {
	remote := memory.New()
	remote.Put(types.RootID, "notes.txt", "text/plain", []byte("hello"))

	cfg := testConfig()
	cfg.Mount.AllowOther = true
	cfg.Mount.AttrTimeout = 3 * time.Second
	a, mount := startAdapter(t, cfg, remote)

	assert.True(t, mount.mounted)
	assert.Equal(t, "/mnt/drive", mount.config.MountPoint)
	assert.Equal(t, "gdrivefs", mount.config.FSName)
	assert.True(t, mount.config.AllowOther)
	assert.Equal(t, 3*time.Second, mount.config.AttrTimeout)
	assert.Same(t, a.Filesystem(), mount.fsys)

	names, err := mount.fsys.Readdir(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "notes.txt"}, names)

	data, err := mount.fsys.Read(context.Background(), "/notes.txt", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	snap := a.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Operations["readdir"].Count)
	assert.Equal(t, float64(1), snap.RemoteCalls[types.CallListChildren])
	assert.Equal(t, float64(1), snap.RemoteCalls[types.CallGetContent])
	assert.Empty(t, a.Metrics().Addr(), "metrics_port 0 must not listen")
}

func TestStart_RetriesTransientFailures(t *testing.T) {
	remote := memory.New()
	remote.Put(types.RootID, "a.txt", "text/plain", []byte("a"))
	remote.FailNext(types.CallListChildren, errors.Transient(stderrors.New("503")))

	_, mount := startAdapter(t, testConfig(), remote)

	names, err := mount.fsys.Readdir(context.Background(), "/")
	require.NoError(t, err)
	assert.Contains(t, names, "a.txt")
	assert.Equal(t, 2, remote.Calls(types.CallListChildren))
}

func TestStart_CircuitBreakerOpens(t *testing.T) {
	remote := memory.New()
	cfg := testConfig()
	cfg.Network.Retry.MaxAttempts = 1
	cfg.Network.CircuitBreaker.FailureThreshold = 2
	cfg.Network.CircuitBreaker.Timeout = time.Hour

	remote.FailNext(types.CallListChildren, stderrors.New("down"), stderrors.New("down"))
	_, mount := startAdapter(t, cfg, remote)

	for i := 0; i < 3; i++ {
		_, err := mount.fsys.Readdir(context.Background(), "/")
		require.Error(t, err)
	}
	assert.Equal(t, 2, remote.Calls(types.CallListChildren), "third call must be rejected by the breaker")
}

func TestStart_BreakerDisabled(t *testing.T) {
	remote := memory.New()
	cfg := testConfig()
	cfg.Network.Retry.MaxAttempts = 1
	cfg.Network.CircuitBreaker.Enabled = false
	cfg.Network.CircuitBreaker.FailureThreshold = 1

	remote.FailNext(types.CallListChildren, stderrors.New("down"), stderrors.New("down"))
	_, mount := startAdapter(t, cfg, remote)

	for i := 0; i < 3; i++ {
		_, _ = mount.fsys.Readdir(context.Background(), "/")
	}
	assert.Equal(t, 3, remote.Calls(types.CallListChildren))
}

func TestStart_MountFailure(t *testing.T) {
	mount := &fakeMount{mountErr: errors.NewError(errors.ErrCodeMountFailed, "busy")}
	a, err := New(context.Background(), "", "/mnt/drive", testConfig(),
		WithBackend(memory.New()),
		WithMountFactory(mount.factory))
	require.NoError(t, err)

	err = a.Start(context.Background())
	assert.Equal(t, errors.ErrCodeMountFailed, errors.Code(err))
	assert.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, 0, mount.unmounted)
}

func TestStartStop(t *testing.T) {
	a, mount := startAdapter(t, testConfig(), memory.New())

	err := a.Start(context.Background())
	assert.Error(t, err, "second Start must fail")

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, 1, mount.unmounted)
	assert.False(t, mount.mounted)

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, 1, mount.unmounted)
}

func TestNewBackend_Memory(t *testing.T) {
	mount := &fakeMount{}
	a, err := New(context.Background(), "memory://", "/mnt/drive", testConfig(), WithMountFactory(mount.factory))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	require.NoError(t, mount.fsys.Mkdir(context.Background(), "/docs"))
	attr, err := mount.fsys.Getattr(context.Background(), "/docs")
	require.NoError(t, err)
	assert.True(t, attr.IsDir())
}

func TestNewBackend_GDriveMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Storage.GDrive.CredentialsFile = filepath.Join(dir, "credentials.json")
	cfg.Storage.GDrive.TokenFile = filepath.Join(dir, "token.json")

	a, err := New(context.Background(), "gdrive://", "/mnt/drive", cfg, WithMountFactory((&fakeMount{}).factory))
	require.NoError(t, err)

	err = a.Start(context.Background())
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.Code(err))
}

func TestNewAuthenticator_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.NewDefault()
	_, err := NewAuthenticator(cfg, nil)
	require.Error(t, err)

	var fsErr *errors.FSError
	require.True(t, stderrors.As(err, &fsErr))
	assert.Equal(t, errors.ErrCodeCredentialsMissing, fsErr.Code)
	assert.Equal(t, filepath.Join(home, ".config/gdrivefs/credentials.json"), fsErr.Context["path"])
}
