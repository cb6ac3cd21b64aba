//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"runtime"
	"sync"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/filesystem"
)

// CgoFuseMountManager manages cgofuse-based mounts
type CgoFuseMountManager struct {
	mu         sync.Mutex
	filesystem *CgoFuseFS
	host       *fuse.FileSystemHost
	config     *MountConfig
	logger     *zap.Logger
	mounted    bool
	done       chan struct{}
}

// NewCgoFuseMountManager creates a new cgofuse mount manager
func NewCgoFuseMountManager(fsys filesystem.Filesystem, config *MountConfig, logger *zap.Logger) *CgoFuseMountManager {
	if config == nil {
		config = &MountConfig{}
	}
	if config.FSName == "" {
		config.FSName = "gdrivefs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CgoFuseMountManager{
		filesystem: NewCgoFuseFS(fsys, logger),
		config:     config,
		logger:     logger,
	}
}

// Mount starts the host and waits until the kernel has initialized it
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return mountError(m.config.MountPoint, "filesystem already mounted", nil)
	}
	if runtime.GOOS != "windows" {
		if err := validateMountPoint(m.config.MountPoint, m.logger); err != nil {
			return err
		}
	}

	host := fuse.NewFileSystemHost(m.filesystem)
	done := make(chan struct{})
	failed := make(chan struct{})

	go func() {
		defer close(done)
		if !host.Mount(m.config.MountPoint, m.mountOptions()) {
			close(failed)
		}
		m.mu.Lock()
		m.mounted = false
		m.mu.Unlock()
	}()

	select {
	case <-m.filesystem.ready:
	case <-failed:
		return mountError(m.config.MountPoint, "failed to mount filesystem", nil)
	case <-ctx.Done():
		host.Unmount()
		return mountError(m.config.MountPoint, "mount canceled", ctx.Err())
	}

	m.host = host
	m.done = done
	m.mounted = true
	m.logger.Info("filesystem mounted", zap.String("mount_point", m.config.MountPoint))
	return nil
}

// Unmount unmounts the filesystem
func (m *CgoFuseMountManager) Unmount() error {
	m.mu.Lock()
	host := m.host
	mounted := m.mounted
	m.mu.Unlock()

	if !mounted || host == nil {
		return mountError(m.config.MountPoint, "filesystem not mounted", nil)
	}
	if !host.Unmount() {
		return mountError(m.config.MountPoint, "unmount failed", nil)
	}

	m.mu.Lock()
	m.mounted = false
	m.mu.Unlock()
	m.logger.Info("filesystem unmounted", zap.String("mount_point", m.config.MountPoint))
	return nil
}

// IsMounted returns whether the filesystem is mounted
func (m *CgoFuseMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Wait blocks until the host returns
func (m *CgoFuseMountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetStats returns filesystem statistics
func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}

func (m *CgoFuseMountManager) mountOptions() []string {
	options := []string{"-o", "fsname=" + m.config.FSName}
	switch runtime.GOOS {
	case "darwin":
		options = append(options, "-o", "volname="+m.config.FSName)
	case "windows":
		options = append(options, "-o", "FileSystemName="+m.config.FSName)
	}
	if m.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}
	if m.config.Debug {
		options = append(options, "-d")
	}
	return options
}
