//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"

	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/filesystem"
)

// PlatformFileSystem is the mount surface selected at build time
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	Wait()
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager creates the cgofuse mount manager
func CreatePlatformMountManager(fsys filesystem.Filesystem, config *MountConfig, logger *zap.Logger) PlatformFileSystem {
	return NewCgoFuseMountManager(fsys, config, logger)
}
