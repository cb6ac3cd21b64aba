//go:build !cgofuse
// +build !cgofuse

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

// CreatePlatformMountManager creates the go-fuse mount manager
func CreatePlatformMountManager(fsys filesystem.Filesystem, config *MountConfig, logger *zap.Logger) PlatformFileSystem {
	if config == nil {
		config = &MountConfig{}
	}
	nodes := NewFileSystem(fsys, &Config{
		AttrTimeout:  config.AttrTimeout,
		EntryTimeout: config.EntryTimeout,
	}, logger)
	return NewMountManager(nodes, config, logger)
}
