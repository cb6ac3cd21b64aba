package cache

import (
	"time"

	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the kind name
func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// RootKey is the cache key of the filesystem root.
const RootKey = "/"

// Root attribute constants.
const (
	RootPerm uint32 = 0o755
	RootSize int64  = 4096
)

// CachedEntry is one filesystem node mirrored from a remote object, or the
// synthetic root.
type CachedEntry struct {
	RemoteID string
	Name     string
	Kind     Kind

	// Perm holds the permission bits, already replicated across user, group
	// and other.
	Perm uint32
	Size int64

	AccessTime int64
	ModifyTime int64
	CreateTime int64

	// Handle is set only for entries created in this session and not yet
	// refetched.
	Handle *types.Handle

	// Fetched is true once the entry was built from full remote metadata.
	Fetched   bool
	FetchedAt time.Time

	// Expanded is true once a remote listing of this directory succeeded.
	Expanded   bool
	ExpandedAt time.Time

	root bool
}

// IsDir reports whether the entry is a directory.
func (e *CachedEntry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsRoot reports whether the entry is the synthetic root.
func (e *CachedEntry) IsRoot() bool {
	return e.root
}

// Attr returns the attributes reported by getattr.
func (e *CachedEntry) Attr() types.Attr {
	mode := types.ModeFile
	if e.IsDir() {
		mode = types.ModeDir
	}
	return types.Attr{
		Mode:  mode | e.Perm,
		Size:  e.Size,
		Nlink: 2,
		Atime: e.AccessTime,
		Mtime: e.ModifyTime,
		Ctime: e.CreateTime,
	}
}

// NewRoot synthesizes the root entry. createdAt is the process start time.
func NewRoot(createdAt time.Time) *CachedEntry {
	return &CachedEntry{
		RemoteID:   types.RootID,
		Name:       "",
		Kind:       KindDirectory,
		Perm:       RootPerm,
		Size:       RootSize,
		CreateTime: createdAt.Unix(),
		Fetched:    true,
		FetchedAt:  createdAt,
		root:       true,
	}
}
