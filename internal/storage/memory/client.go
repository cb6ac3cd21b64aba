// Package memory provides an in-process RemoteClient. It backs the
// memory:// storage URI and the filesystem tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

type object struct {
	meta    types.RemoteObject
	content []byte
	seq     uint64
}

// Client is a thread-safe in-memory object tree with soft delete.
type Client struct {
	mu       sync.Mutex
	objects  map[string]*object
	seq      uint64
	calls    map[string]int
	failures map[string][]error
	now      func() time.Time
}

var _ types.RemoteClient = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithClock sets the clock used for object timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client holding only the root folder.
func New(opts ...Option) *Client {
	c := &Client{
		objects:  make(map[string]*object),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.objects[types.RootID] = &object{meta: types.RemoteObject{
		ID:           types.RootID,
		Title:        "",
		MimeType:     types.FolderMimeType,
		Capabilities: types.Capabilities{CanEdit: true, CanListChildren: true},
		CreatedDate:  types.FormatTimestamp(c.now()),
		ModifiedDate: types.FormatTimestamp(c.now()),
	}}
	return c
}

// CreateObject adds an empty object under parentID.
func (c *Client) CreateObject(ctx context.Context, title, parentID, mimeType string) (*types.RemoteObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallCreateObject); err != nil {
		return nil, err
	}

	parent, ok := c.objects[parentID]
	if !ok || parent.meta.Trashed {
		return nil, errors.NotFound(parentID).WithComponent("memory").WithOperation(types.CallCreateObject)
	}

	obj := c.insert(title, parentID, mimeType, nil)
	meta := obj.meta
	return &meta, nil
}

// ListChildren returns the children of parentID in creation order.
func (c *Client) ListChildren(ctx context.Context, parentID string, opts types.ListOptions) ([]types.RemoteObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallListChildren); err != nil {
		return nil, err
	}

	var matches []*object
	for _, obj := range c.objects {
		if !hasParent(&obj.meta, parentID) {
			continue
		}
		if obj.meta.Trashed && !opts.IncludeTrashed {
			continue
		}
		if opts.Name != "" && obj.meta.Title != opts.Name {
			continue
		}
		matches = append(matches, obj)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	out := make([]types.RemoteObject, 0, len(matches))
	for _, obj := range matches {
		out = append(out, obj.meta)
	}
	return out, nil
}

// FetchMetadata returns the full metadata of id.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*types.RemoteObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallFetchMetadata); err != nil {
		return nil, err
	}

	obj, ok := c.objects[id]
	if !ok {
		return nil, errors.NotFound(id).WithComponent("memory").WithOperation(types.CallFetchMetadata)
	}
	meta := obj.meta
	return &meta, nil
}

// GetContent returns a copy of the content of id.
func (c *Client) GetContent(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallGetContent); err != nil {
		return nil, err
	}

	obj, ok := c.objects[id]
	if !ok {
		return nil, errors.NotFound(id).WithComponent("memory").WithOperation(types.CallGetContent)
	}
	return append([]byte{}, obj.content...), nil
}

// SetContent replaces the content of id.
func (c *Client) SetContent(ctx context.Context, id string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallSetContent); err != nil {
		return err
	}

	obj, ok := c.objects[id]
	if !ok {
		return errors.NotFound(id).WithComponent("memory").WithOperation(types.CallSetContent)
	}
	obj.content = append([]byte{}, content...)
	obj.meta.FileSize = int64(len(content))
	obj.meta.ModifiedDate = types.FormatTimestamp(c.now())
	return nil
}

// Trash marks id as trashed. Trashed objects stay retrievable by id.
func (c *Client) Trash(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.begin(types.CallTrash); err != nil {
		return err
	}

	obj, ok := c.objects[id]
	if !ok || id == types.RootID {
		return errors.NotFound(id).WithComponent("memory").WithOperation(types.CallTrash)
	}
	obj.meta.Trashed = true
	return nil
}

// Put seeds an object without counting a call and returns its id.
func (c *Client) Put(parentID, title, mimeType string, content []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.insert(title, parentID, mimeType, content).meta.ID
}

// Calls returns how many times the named call was made.
func (c *Client) Calls(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[call]
}

// TotalCalls returns the number of calls of every kind.
func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// FailNext makes the next calls of the named kind fail with errs, in order.
func (c *Client) FailNext(call string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[call] = append(c.failures[call], errs...)
}

// Object returns a copy of the metadata and content of id.
func (c *Client) Object(id string) (types.RemoteObject, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[id]
	if !ok {
		return types.RemoteObject{}, nil, false
	}
	return obj.meta, append([]byte{}, obj.content...), true
}

func (c *Client) begin(call string) error {
	c.calls[call]++
	if queued := c.failures[call]; len(queued) > 0 {
		c.failures[call] = queued[1:]
		return queued[0]
	}
	return nil
}

func (c *Client) insert(title, parentID, mimeType string, content []byte) *object {
	if mimeType == "" {
		mimeType = "text/plain"
	}
	now := types.FormatTimestamp(c.now())
	c.seq++

	obj := &object{
		meta: types.RemoteObject{
			ID:       uuid.NewString(),
			Title:    title,
			MimeType: mimeType,
			Capabilities: types.Capabilities{
				CanEdit:         true,
				CanListChildren: mimeType == types.FolderMimeType,
			},
			FileSize:     int64(len(content)),
			Parents:      []string{parentID},
			CreatedDate:  now,
			ModifiedDate: now,
		},
		content: append([]byte{}, content...),
		seq:     c.seq,
	}
	c.objects[obj.meta.ID] = obj
	return obj
}

func hasParent(obj *types.RemoteObject, parentID string) bool {
	for _, p := range obj.Parents {
		if p == parentID {
			return true
		}
	}
	return false
}
