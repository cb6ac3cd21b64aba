//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	"fmt"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"
)

// MountManager manages go-fuse mount operations
type MountManager struct {
	mu         sync.Mutex
	filesystem *FileSystem
	server     *fuse.Server
	config     *MountConfig
	logger     *zap.Logger
	mounted    bool
	done       chan struct{}
}

// NewMountManager creates a new mount manager
func NewMountManager(filesystem *FileSystem, config *MountConfig, logger *zap.Logger) *MountManager {
	if config == nil {
		config = &MountConfig{}
	}
	if config.FSName == "" {
		config.FSName = "gdrivefs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     logger,
	}
}

// Mount mounts the filesystem and serves it in the background
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return mountError(m.config.MountPoint, "filesystem is already mounted", nil)
	}

	if err := m.validateMountPoint(); err != nil {
		return err
	}

	server, err := fs.Mount(m.config.MountPoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return mountError(m.config.MountPoint, "failed to mount filesystem", err)
	}

	m.server = server
	m.mounted = true
	m.done = make(chan struct{})

	m.logger.Info("filesystem mounted",
		zap.String("mount_point", m.config.MountPoint),
		zap.String("fsname", m.config.FSName))

	go func(server *fuse.Server, done chan struct{}) {
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
			m.server = nil
		}
		m.mu.Unlock()
		m.logger.Info("FUSE server stopped", zap.String("mount_point", m.config.MountPoint))
		close(done)
	}(server, m.done)

	return nil
}

// Unmount unmounts the filesystem
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	server := m.server
	mounted := m.mounted
	m.mu.Unlock()

	if !mounted || server == nil {
		return mountError(m.config.MountPoint, "filesystem is not mounted", nil)
	}

	m.logger.Info("unmounting filesystem", zap.String("mount_point", m.config.MountPoint))

	if err := server.Unmount(); err != nil {
		m.logger.Warn("normal unmount failed, trying lazy unmount", zap.Error(err))
		if forceErr := m.forceUnmount(); forceErr != nil {
			return mountError(m.config.MountPoint,
				fmt.Sprintf("unmount failed (lazy unmount also failed: %v)", forceErr), err)
		}
	}

	m.mu.Lock()
	m.mounted = false
	m.server = nil
	m.mu.Unlock()
	return nil
}

// IsMounted checks if the filesystem is currently mounted
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// GetMountPoint returns the current mount point
func (m *MountManager) GetMountPoint() string {
	return m.config.MountPoint
}

// Wait blocks until the FUSE server stops serving
func (m *MountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetStats returns filesystem statistics
func (m *MountManager) GetStats() *FilesystemStats {
	if m.filesystem == nil {
		return &FilesystemStats{}
	}
	stats := m.filesystem.GetStats()
	return &FilesystemStats{
		Lookups:      stats.Lookups,
		Opens:        stats.Opens,
		Reads:        stats.Reads,
		Writes:       stats.Writes,
		BytesRead:    stats.BytesRead,
		BytesWritten: stats.BytesWritten,
		Errors:       stats.Errors,
	}
}

// Helper methods

func (m *MountManager) validateMountPoint() error {
	return validateMountPoint(m.config.MountPoint, m.logger)
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	attrTimeout := m.config.AttrTimeout
	entryTimeout := m.config.EntryTimeout

	return &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:        m.config.FSName,
			FsName:      m.config.FSName,
			DirectMount: true,
			Debug:       m.config.Debug,
			AllowOther:  m.config.AllowOther,
		},
		AttrTimeout:     &attrTimeout,
		EntryTimeout:    &entryTimeout,
		NullPermissions: true,
	}
}

func (m *MountManager) forceUnmount() error {
	// MNT_DETACH, then MNT_FORCE
	if err := syscall.Unmount(m.config.MountPoint, 2); err == nil {
		return nil
	}
	return syscall.Unmount(m.config.MountPoint, 1)
}
