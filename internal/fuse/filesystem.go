//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// safeInt64ToUint64 safely converts int64 to uint64, preventing negative values
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// FileSystem bridges the go-fuse node API to a path-based Filesystem.
type FileSystem struct {
	fsys   filesystem.Filesystem
	config *Config
	logger *zap.Logger
	stats  *Stats
}

// Config represents FUSE node configuration
type Config struct {
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// Stats tracks kernel requests seen by the node layer
type Stats struct {
	mu sync.RWMutex

	Lookups      int64 `json:"lookups"`
	Opens        int64 `json:"opens"`
	Reads        int64 `json:"reads"`
	Writes       int64 `json:"writes"`
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`
	Errors       int64 `json:"errors"`
}

// NewFileSystem creates the go-fuse bridge for fsys.
func NewFileSystem(fsys filesystem.Filesystem, config *Config, logger *zap.Logger) *FileSystem {
	if config == nil {
		config = &Config{
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileSystem{
		fsys:   fsys,
		config: config,
		logger: logger,
		stats:  &Stats{},
	}
}

// Root returns the root inode
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &Node{fsys: f, path: "/"}
}

// GetStats returns a copy of the current statistics
func (f *FileSystem) GetStats() *Stats {
	f.stats.mu.RLock()
	defer f.stats.mu.RUnlock()

	return &Stats{
		Lookups:      f.stats.Lookups,
		Opens:        f.stats.Opens,
		Reads:        f.stats.Reads,
		Writes:       f.stats.Writes,
		BytesRead:    f.stats.BytesRead,
		BytesWritten: f.stats.BytesWritten,
		Errors:       f.stats.Errors,
	}
}

func (f *FileSystem) count(update func(s *Stats)) {
	f.stats.mu.Lock()
	update(f.stats)
	f.stats.mu.Unlock()
}

// errno converts err for the kernel and counts it.
func (f *FileSystem) errno(op, path string, err error) syscall.Errno {
	if err == nil {
		return 0
	}
	f.count(func(s *Stats) { s.Errors++ })
	if !errors.IsNotFound(err) {
		f.logger.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
	}
	return errors.Errno(err)
}

// Node is a file or directory identified by its absolute path.
type Node struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ = (fs.NodeGetattrer)((*Node)(nil))
var _ = (fs.NodeSetattrer)((*Node)(nil))
var _ = (fs.NodeLookuper)((*Node)(nil))
var _ = (fs.NodeReaddirer)((*Node)(nil))
var _ = (fs.NodeMkdirer)((*Node)(nil))
var _ = (fs.NodeCreater)((*Node)(nil))
var _ = (fs.NodeOpener)((*Node)(nil))
var _ = (fs.NodeReader)((*Node)(nil))
var _ = (fs.NodeWriter)((*Node)(nil))
var _ = (fs.NodeRmdirer)((*Node)(nil))
var _ = (fs.NodeUnlinker)((*Node)(nil))

// Getattr reports the cached or refetched attributes of the node
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.fsys.Getattr(ctx, n.path)
	if err != nil {
		return n.fsys.errno("getattr", n.path, err)
	}
	fillAttr(&out.Attr, attr)
	out.SetTimeout(n.fsys.config.AttrTimeout)
	return 0
}

// Setattr accepts size changes as a no-op truncate
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.fsys.fsys.Truncate(ctx, n.path, safeUint64ToInt64(size)); err != nil {
			return n.fsys.errno("truncate", n.path, err)
		}
	}
	return n.Getattr(ctx, fh, out)
}

// Lookup resolves a child by name
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fsys.count(func(s *Stats) { s.Lookups++ })

	child, attr, errno := n.childAttr(ctx, name, out)
	if errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, child, attr), 0
}

// Readdir lists the directory. The names "." and ".." are left to the kernel.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.fsys.fsys.Readdir(ctx, n.path)
	if err != nil {
		return nil, n.fsys.errno("readdir", n.path, err)
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		entry := fuse.DirEntry{Name: name}
		// Readdir leaves the children cached, so this does not go remote.
		if attr, err := n.fsys.fsys.Getattr(ctx, joinPath(n.path, name)); err == nil {
			entry.Mode = attr.Mode & syscall.S_IFMT
		}
		entries = append(entries, entry)
	}
	return fs.NewListDirStream(entries), 0
}

// Mkdir creates a remote folder
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := joinPath(n.path, name)
	if err := n.fsys.fsys.Mkdir(ctx, path); err != nil {
		return nil, n.fsys.errno("mkdir", path, err)
	}

	child, attr, errno := n.childAttr(ctx, name, out)
	if errno != 0 {
		return nil, errno
	}
	return n.newChild(ctx, child, attr), 0
}

// Create creates an empty remote file
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	path := joinPath(n.path, name)
	if err := n.fsys.fsys.Create(ctx, path); err != nil {
		return nil, nil, 0, n.fsys.errno("create", path, err)
	}

	child, attr, errno := n.childAttr(ctx, name, out)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return n.newChild(ctx, child, attr), nil, fuse.FOPEN_DIRECT_IO, 0
}

// Open opens the node without a file handle. Every read goes to the
// filesystem, so the page cache is bypassed.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.fsys.count(func(s *Stats) { s.Opens++ })

	if err := n.fsys.fsys.Open(ctx, n.path, int(flags)); err != nil {
		return nil, 0, n.fsys.errno("open", n.path, err)
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

// Read returns up to len(dest) bytes at off
func (n *Node) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.fsys.fsys.Read(ctx, n.path, len(dest), off)
	if err != nil {
		return nil, n.fsys.errno("read", n.path, err)
	}

	n.fsys.count(func(s *Stats) {
		s.Reads++
		s.BytesRead += int64(len(data))
	})
	return fuse.ReadResultData(data), 0
}

// Write splices data into the remote content. The kernel is told that all
// of data was written.
func (n *Node) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if _, err := n.fsys.fsys.Write(ctx, n.path, data, off); err != nil {
		return 0, n.fsys.errno("write", n.path, err)
	}

	n.fsys.count(func(s *Stats) {
		s.Writes++
		s.BytesWritten += int64(len(data))
	})
	return safeIntToUint32(len(data)), 0
}

// Rmdir trashes a child folder
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	path := joinPath(n.path, name)
	return n.fsys.errno("rmdir", path, n.fsys.fsys.Rmdir(ctx, path))
}

// Unlink trashes a child file
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	path := joinPath(n.path, name)
	return n.fsys.errno("unlink", path, n.fsys.fsys.Unlink(ctx, path))
}

// Helper methods

func (n *Node) childAttr(ctx context.Context, name string, out *fuse.EntryOut) (string, types.Attr, syscall.Errno) {
	path := joinPath(n.path, name)
	attr, err := n.fsys.fsys.Getattr(ctx, path)
	if err != nil {
		return "", types.Attr{}, n.fsys.errno("getattr", path, err)
	}

	fillAttr(&out.Attr, attr)
	out.SetEntryTimeout(n.fsys.config.EntryTimeout)
	out.SetAttrTimeout(n.fsys.config.AttrTimeout)
	return path, attr, 0
}

func (n *Node) newChild(ctx context.Context, path string, attr types.Attr) *fs.Inode {
	return n.NewInode(ctx, &Node{fsys: n.fsys, path: path}, fs.StableAttr{Mode: attr.Mode & syscall.S_IFMT})
}

func fillAttr(out *fuse.Attr, attr types.Attr) {
	out.Mode = attr.Mode
	out.Size = safeInt64ToUint64(attr.Size)
	out.Nlink = attr.Nlink
	out.Owner = fuse.Owner{Uid: attr.UID, Gid: attr.GID}
	out.Atime = safeInt64ToUint64(attr.Atime)
	out.Mtime = safeInt64ToUint64(attr.Mtime)
	out.Ctime = safeInt64ToUint64(attr.Ctime)
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if uint64(i) > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

func safeUint64ToInt64(u uint64) int64 {
	if u > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(u)
}
