package types

import "time"

// FolderMimeType marks a remote object as a directory.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootID is the provider id used for the top of the tree.
const RootID = "root"

// Capabilities are the provider-reported permissions of an object
type Capabilities struct {
	CanEdit         bool `json:"can_edit"`
	CanListChildren bool `json:"can_list_children"`
}

// RemoteObject represents metadata about a remote file or folder
type RemoteObject struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	MimeType     string       `json:"mime_type"`
	Capabilities Capabilities `json:"capabilities"`
	FileSize     int64        `json:"file_size"`
	Parents      []string     `json:"parents,omitempty"`
	Trashed      bool         `json:"trashed"`

	// ISO-8601 timestamps as reported by the provider; empty when absent.
	LastViewedByMeDate string `json:"last_viewed_by_me_date,omitempty"`
	ModifiedDate       string `json:"modified_date,omitempty"`
	CreatedDate        string `json:"created_date,omitempty"`
}

// IsFolder reports whether the object is a directory.
func (o *RemoteObject) IsFolder() bool {
	return o.MimeType == FolderMimeType
}

// ListOptions narrows a ListChildren query
type ListOptions struct {
	// Name filters by exact title when non-empty.
	Name string `json:"name,omitempty"`

	// IncludeTrashed returns trashed children as well.
	IncludeTrashed bool `json:"include_trashed"`
}

// Handle is a locally held reference to an object created in this session.
// It remembers the last content this process uploaded so the next write can
// skip a content download.
type Handle struct {
	Object  RemoteObject
	Content []byte
}

// NewHandle returns a handle for a freshly created, empty object.
func NewHandle(obj RemoteObject) *Handle {
	return &Handle{Object: obj, Content: []byte{}}
}

// CacheStats represents metadata cache statistics
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// Attr is the attribute set reported for one filesystem node
type Attr struct {
	Mode  uint32 `json:"mode"`
	Size  int64  `json:"size"`
	Nlink uint32 `json:"nlink"`
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Atime int64  `json:"atime"`
	Mtime int64  `json:"mtime"`
	Ctime int64  `json:"ctime"`
}

// IsDir reports whether the attributes describe a directory.
func (a Attr) IsDir() bool {
	return a.Mode&ModeDir != 0
}

// File type bits, matching the POSIX S_IF* values.
const (
	ModeDir  uint32 = 0o040000
	ModeFile uint32 = 0o100000
)

// ParseTimestamp converts a provider ISO-8601 timestamp to Unix seconds.
// Missing or unparseable values map to 0.
func ParseTimestamp(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// FormatTimestamp renders t the way providers report timestamps.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
