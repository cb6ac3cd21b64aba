package types

import (
	"context"
	"time"
)

// RemoteClient defines the capability set the filesystem core needs from a
// remote storage provider. Implementations perform authenticated CRUD against
// the provider; the core never sees credentials.
type RemoteClient interface {
	// Object creation. The returned object is already persisted remotely.
	CreateObject(ctx context.Context, title, parentID, mimeType string) (*RemoteObject, error)

	// Listing
	ListChildren(ctx context.Context, parentID string, opts ListOptions) ([]RemoteObject, error)

	// Metadata
	FetchMetadata(ctx context.Context, id string) (*RemoteObject, error)

	// Content operations. SetContent replaces and uploads the whole content.
	GetContent(ctx context.Context, id string) ([]byte, error)
	SetContent(ctx context.Context, id string, content []byte) error

	// Soft delete
	Trash(ctx context.Context, id string) error
}

// Remote call names, used as metric labels and error operations.
const (
	CallCreateObject  = "create_object"
	CallListChildren  = "list_children"
	CallFetchMetadata = "fetch_metadata"
	CallGetContent    = "get_content"
	CallSetContent    = "set_content"
	CallTrash         = "trash"
)

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, success bool)
	RecordRemoteCall(call string, duration time.Duration, err error)
	RecordCacheHit(path string)
	RecordCacheMiss(path string)
	SetCacheEntries(n int)
}
