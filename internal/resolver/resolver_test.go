package resolver

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/internal/testutil"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

func newResolver(t *testing.T) (*Resolver, *testutil.MockRemoteClient, *cache.MetadataCache) {
	t.Helper()
	remote := &testutil.MockRemoteClient{}
	c := cache.NewMetadataCache(cache.Config{})
	return New(remote, c, WithStartTime(time.Unix(1_700_000_000, 0))), remote, c
}

func TestClean(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/", "/", false},
		{"/a", "/a", false},
		{"/a/", "/a", false},
		{"/a/b//", "/a/b", false},
		{"a", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Clean(tt.in)
		if tt.wantErr {
			assert.Equal(t, errors.ErrCodeInvalidPath, errors.Code(err), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		path, parent, leaf string
	}{
		{"/", "/", ""},
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/c.txt", "/a/b", "c.txt"},
	}

	for _, tt := range tests {
		parent, leaf := Split(tt.path)
		assert.Equal(t, tt.parent, parent, tt.path)
		assert.Equal(t, tt.leaf, leaf, tt.path)
	}
}

func TestChildKey(t *testing.T) {
	assert.Equal(t, "/a", ChildKey("/", "a"))
	assert.Equal(t, "/a/b", ChildKey("/a", "b"))
	assert.Equal(t, "/a/x-y", ChildKey("/a", "x/y"))
	assert.Equal(t, "/--", ChildKey("/", "//"))

	// Keys built from sanitized names split back into the same parent.
	parent, leaf := Split(ChildKey("/docs", "2024/03 report"))
	assert.Equal(t, "/docs", parent)
	assert.Equal(t, "2024-03 report", leaf)
}

func TestPermissions(t *testing.T) {
	tests := []struct {
		name string
		obj  types.RemoteObject
		want uint32
	}{
		{"read-only file", types.RemoteObject{}, 0o444},
		{"editable file", types.RemoteObject{Capabilities: types.Capabilities{CanEdit: true}}, 0o666},
		{"file ignores list capability", types.RemoteObject{Capabilities: types.Capabilities{CanListChildren: true}}, 0o444},
		{"listable folder", types.RemoteObject{MimeType: types.FolderMimeType, Capabilities: types.Capabilities{CanListChildren: true}}, 0o555},
		{"editable listable folder", types.RemoteObject{MimeType: types.FolderMimeType, Capabilities: types.Capabilities{CanEdit: true, CanListChildren: true}}, 0o777},
		{"unlistable folder", types.RemoteObject{MimeType: types.FolderMimeType, Capabilities: types.Capabilities{CanEdit: true}}, 0o666},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Permissions(&tt.obj))
		})
	}
}

func TestEntryFromObject(t *testing.T) {
	obj := &types.RemoteObject{
		ID:                 "f1",
		Title:              "a/b.txt",
		FileSize:           42,
		LastViewedByMeDate: "2024-01-02T03:04:05.678Z",
		ModifiedDate:       "2024-01-02T03:04:05Z",
	}

	entry := EntryFromObject(obj)

	assert.Equal(t, "f1", entry.RemoteID)
	assert.Equal(t, "a-b.txt", entry.Name)
	assert.Equal(t, cache.KindFile, entry.Kind)
	assert.Equal(t, int64(42), entry.Size)
	assert.Equal(t, int64(1704164645), entry.AccessTime)
	assert.Equal(t, int64(1704164645), entry.ModifyTime)
	assert.Equal(t, int64(0), entry.CreateTime)
	assert.False(t, entry.Fetched)

	dir := EntryFromObject(testutil.Folder("d1", "docs"))
	assert.Equal(t, cache.KindDirectory, dir.Kind)
	assert.Equal(t, int64(0), dir.Size)
}

func TestLookup_Root(t *testing.T) {
	r, remote, c := newResolver(t)

	key, entry, err := r.Lookup(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, "/", key)
	assert.True(t, entry.IsRoot())
	assert.Equal(t, int64(1_700_000_000), entry.CreateTime)
	assert.Equal(t, 1, c.Len())
	remote.AssertExpectations(t)
}

func TestLookup_CachedFreshEntryMakesNoRemoteCall(t *testing.T) {
	r, remote, c := newResolver(t)
	entry := EntryFromObject(testutil.File("f1", "a", 3))
	c.MarkFetched(entry)
	c.Put("/a", entry)

	_, got, err := r.Lookup(context.Background(), "/a")
	require.NoError(t, err)

	assert.Same(t, entry, got)
	remote.AssertNotCalled(t, "FetchMetadata", mock.Anything, mock.Anything)
	remote.AssertNotCalled(t, "ListChildren", mock.Anything, mock.Anything, mock.Anything)
}

func TestLookup_MissResolvesThroughParent(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()
	_, _, err := r.Lookup(ctx, "/")
	require.NoError(t, err)

	remote.On("ListChildren", ctx, types.RootID, types.ListOptions{Name: "a.txt"}).
		Return([]types.RemoteObject{*testutil.File("f1", "a.txt", 0), *testutil.File("f2", "a.txt", 0)}, nil).Once()
	remote.On("FetchMetadata", ctx, "f1").Return(testutil.File("f1", "a.txt", 7), nil).Once()

	key, entry, err := r.Lookup(ctx, "/a.txt")
	require.NoError(t, err)

	assert.Equal(t, "/a.txt", key)
	assert.Equal(t, "f1", entry.RemoteID)
	assert.Equal(t, int64(7), entry.Size)
	assert.True(t, entry.Fetched)
	cached, ok := c.Peek("/a.txt")
	require.True(t, ok)
	assert.Same(t, entry, cached)
	remote.AssertExpectations(t)
}

func TestLookup_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("parent not cached", func(t *testing.T) {
		r, remote, _ := newResolver(t)

		_, _, err := r.Lookup(ctx, "/missing/child")

		assert.True(t, errors.IsNotFound(err))
		remote.AssertNotCalled(t, "ListChildren", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no remote match", func(t *testing.T) {
		r, remote, c := newResolver(t)
		remote.On("ListChildren", ctx, types.RootID, types.ListOptions{Name: "nope"}).Return([]types.RemoteObject{}, nil).Once()

		_, _, err := r.Lookup(ctx, "/nope")

		assert.True(t, errors.IsNotFound(err))
		_, ok := c.Peek("/nope")
		assert.False(t, ok)
		remote.AssertExpectations(t)
	})
}

func TestLookup_StaleEntryIsRefetched(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()

	local := EntryFromObject(testutil.Folder("d1", "a"))
	local.Handle = types.NewHandle(*testutil.Folder("d1", "a"))
	c.MarkExpanded(local)
	c.Put("/a", local)

	remote.On("FetchMetadata", ctx, "d1").Return(testutil.Folder("d1", "a"), nil).Once()

	_, entry, err := r.Lookup(ctx, "/a")
	require.NoError(t, err)

	assert.True(t, entry.Fetched)
	assert.Nil(t, entry.Handle)
	assert.True(t, entry.Expanded)
	assert.Positive(t, entry.CreateTime)
	remote.AssertExpectations(t)
}

func TestLookup_RemoteFailure(t *testing.T) {
	r, remote, _ := newResolver(t)
	ctx := context.Background()
	remote.On("ListChildren", ctx, types.RootID, mock.Anything).Return(nil, stderrors.New("quota")).Once()

	_, _, err := r.Lookup(ctx, "/a")

	assert.Equal(t, errors.ErrCodeRemoteFailure, errors.Code(err))
}

func TestExpand_ReconcilesGhosts(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()

	root, err := r.Parent("/")
	require.NoError(t, err)
	c.Put("/ghost", EntryFromObject(testutil.File("g", "ghost", 0)))
	c.Put("/ghost-dir", EntryFromObject(testutil.Folder("gd", "ghost-dir")))
	c.Put("/ghost-dir/inner", EntryFromObject(testutil.File("gi", "inner", 0)))

	remote.On("ListChildren", ctx, types.RootID, types.ListOptions{}).
		Return([]types.RemoteObject{*testutil.File("f1", "b", 1), *testutil.Folder("d1", "a/x")}, nil).Once()

	require.NoError(t, r.Expand(ctx, "/", root))

	assert.Equal(t, []string{"/", "/a-x", "/b"}, c.Keys())
	assert.True(t, root.Expanded)
	remote.AssertExpectations(t)
}

func TestExpand_FirstDuplicateWins(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()

	root, err := r.Parent("/")
	require.NoError(t, err)
	remote.On("ListChildren", ctx, types.RootID, types.ListOptions{}).
		Return([]types.RemoteObject{*testutil.File("first", "dup", 1), *testutil.File("second", "dup", 2)}, nil).Once()

	require.NoError(t, r.Expand(ctx, "/", root))

	entry, ok := c.Peek("/dup")
	require.True(t, ok)
	assert.Equal(t, "first", entry.RemoteID)
	assert.Equal(t, []string{"/dup"}, c.Children("/"))
}

func TestLookup_StaleEntryTrashedRemotely(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()

	c.Put("/a", EntryFromObject(testutil.Folder("d1", "a")))
	c.Put("/a/b", EntryFromObject(testutil.File("f1", "b", 0)))

	trashed := testutil.Folder("d1", "a")
	trashed.Trashed = true
	remote.On("FetchMetadata", ctx, "d1").Return(trashed, nil).Once()

	_, _, err := r.Lookup(ctx, "/a")

	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, c.Keys())
	_, ok := c.Peek("/a")
	assert.False(t, ok)
	_, ok = c.Peek("/a/b")
	assert.False(t, ok)
	remote.AssertExpectations(t)
}

func TestLookup_StaleEntryDeletedRemotely(t *testing.T) {
	r, remote, c := newResolver(t)
	ctx := context.Background()

	c.Put("/a", EntryFromObject(testutil.File("f1", "a", 0)))
	remote.On("FetchMetadata", ctx, "f1").Return(nil, errors.NotFound("f1")).Once()

	_, _, err := r.Lookup(ctx, "/a")

	assert.True(t, errors.IsNotFound(err))
	_, ok := c.Peek("/a")
	assert.False(t, ok)
}

func TestStore_KeepsListingStateOfSameObject(t *testing.T) {
	r, _, c := newResolver(t)

	_, first := r.Store("/", testutil.Folder("d1", "a"), true)
	c.MarkExpanded(first)

	_, second := r.Store("/", testutil.Folder("d1", "a"), true)
	assert.True(t, second.Expanded)

	_, replaced := r.Store("/", testutil.Folder("d2", "a"), true)
	assert.False(t, replaced.Expanded)
}

func TestCached(t *testing.T) {
	r, _, c := newResolver(t)
	c.Put("/a", EntryFromObject(testutil.File("f1", "a", 0)))

	key, entry, err := r.Cached("/a/")
	require.NoError(t, err)
	assert.Equal(t, "/a", key)
	assert.Equal(t, "f1", entry.RemoteID)

	_, _, err = r.Cached("/b")
	assert.True(t, errors.IsNotFound(err))
}
