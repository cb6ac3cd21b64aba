// Package filesystem implements the filesystem operation contract on top of
// the metadata cache, the path resolver and a remote storage client. Mount
// surfaces (go-fuse, cgofuse) call into it with absolute paths.
package filesystem

import (
	"context"

	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Filesystem defines the path-based operations every mount surface uses.
type Filesystem interface {
	// Metadata operations
	Getattr(ctx context.Context, path string) (types.Attr, error)
	Readdir(ctx context.Context, path string) ([]string, error)

	// Creation
	Create(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error

	// I/O operations. Write returns the length of the new total content.
	Read(ctx context.Context, path string, size int, offset int64) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, offset int64) (int, error)

	// Removal moves the remote object to the trash.
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error

	// Accepted and ignored.
	Truncate(ctx context.Context, path string, length int64) error
	Open(ctx context.Context, path string, flags int) error
}

// Config controls read behavior.
type Config struct {
	// LegacyReads returns no data for offset > 0 and the whole content for
	// offset 0, ignoring size.
	LegacyReads bool `yaml:"legacy_reads"`

	// AllowBinary returns non-UTF-8 content as is instead of NotTextMarker.
	AllowBinary bool `yaml:"allow_binary"`
}

// NotTextMarker replaces content that is not valid UTF-8.
const NotTextMarker = "Not a text file."
