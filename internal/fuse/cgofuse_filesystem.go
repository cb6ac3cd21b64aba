//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// CgoFuseFS exposes a Filesystem through the path-based cgofuse API
type CgoFuseFS struct {
	fuse.FileSystemBase

	fsys   filesystem.Filesystem
	logger *zap.Logger

	mu    sync.Mutex
	stats FilesystemStats
	ready chan struct{}
	once  sync.Once
}

// NewCgoFuseFS creates a new cgofuse-based filesystem
func NewCgoFuseFS(fsys filesystem.Filesystem, logger *zap.Logger) *CgoFuseFS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CgoFuseFS{
		fsys:   fsys,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Init is called by the host once the filesystem is mounted
func (c *CgoFuseFS) Init() {
	c.once.Do(func() { close(c.ready) })
}

// Getattr gets file attributes
func (c *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	attr, err := c.fsys.Getattr(context.Background(), path)
	if err != nil {
		return c.status("getattr", path, err)
	}
	fillStat(stat, attr)
	return 0
}

// Readdir reads directory contents, "." and ".." included
func (c *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	names, err := c.fsys.Readdir(context.Background(), path)
	if err != nil {
		return c.status("readdir", path, err)
	}
	for _, name := range names {
		if !fill(name, nil, 0) {
			break
		}
	}
	return 0
}

// Mkdir creates a remote folder
func (c *CgoFuseFS) Mkdir(path string, mode uint32) int {
	return c.status("mkdir", path, c.fsys.Mkdir(context.Background(), path))
}

// Create creates an empty remote file
func (c *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	return c.status("create", path, c.fsys.Create(context.Background(), path)), ^uint64(0)
}

// Open opens a file
func (c *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	c.count(func(s *FilesystemStats) { s.Opens++ })
	return c.status("open", path, c.fsys.Open(context.Background(), path, flags)), ^uint64(0)
}

// Read reads from a file
func (c *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	data, err := c.fsys.Read(context.Background(), path, len(buff), ofst)
	if err != nil {
		return c.status("read", path, err)
	}
	n := copy(buff, data)
	c.count(func(s *FilesystemStats) {
		s.Reads++
		s.BytesRead += int64(n)
	})
	return n
}

// Write splices buff into the remote content and reports len(buff)
func (c *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	if _, err := c.fsys.Write(context.Background(), path, buff, ofst); err != nil {
		return c.status("write", path, err)
	}
	c.count(func(s *FilesystemStats) {
		s.Writes++
		s.BytesWritten += int64(len(buff))
	})
	return len(buff)
}

// Truncate is accepted and ignored
func (c *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return c.status("truncate", path, c.fsys.Truncate(context.Background(), path, size))
}

// Rmdir trashes a folder
func (c *CgoFuseFS) Rmdir(path string) int {
	return c.status("rmdir", path, c.fsys.Rmdir(context.Background(), path))
}

// Unlink trashes a file
func (c *CgoFuseFS) Unlink(path string) int {
	return c.status("unlink", path, c.fsys.Unlink(context.Background(), path))
}

// GetStats returns filesystem statistics
func (c *CgoFuseFS) GetStats() *FilesystemStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	return &stats
}

// Helper methods

func (c *CgoFuseFS) count(update func(s *FilesystemStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// status converts err into the negative errno cgofuse expects.
func (c *CgoFuseFS) status(op, path string, err error) int {
	if err == nil {
		return 0
	}
	c.count(func(s *FilesystemStats) { s.Errors++ })
	if !errors.IsNotFound(err) {
		c.logger.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
	}

	switch errors.Errno(err) {
	case syscall.ENOENT:
		return -fuse.ENOENT
	case syscall.EINVAL:
		return -fuse.EINVAL
	default:
		return -fuse.EIO
	}
}

func fillStat(stat *fuse.Stat_t, attr types.Attr) {
	stat.Mode = attr.Mode
	stat.Size = attr.Size
	stat.Nlink = attr.Nlink
	stat.Uid = attr.UID
	stat.Gid = attr.GID
	stat.Atim = fuse.NewTimespec(time.Unix(attr.Atime, 0))
	stat.Mtim = fuse.NewTimespec(time.Unix(attr.Mtime, 0))
	stat.Ctim = fuse.NewTimespec(time.Unix(attr.Ctime, 0))
	stat.Birthtim = stat.Ctim
}
