//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/internal/storage/memory"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

type fixture struct {
	remote *memory.Client
	fs     *FileSystem
	root   *Node
	noteID string
	docsID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	remote := memory.New()
	noteID := remote.Put(types.RootID, "notes.txt", "text/plain", []byte("hello"))
	docsID := remote.Put(types.RootID, "docs", types.FolderMimeType, nil)

	adapter := filesystem.New(remote, cache.NewMetadataCache(cache.Config{}), filesystem.Config{})
	f := NewFileSystem(adapter, nil, nil)
	root, ok := f.Root().(*Node)
	require.True(t, ok)

	return &fixture{remote: remote, fs: f, root: root, noteID: noteID, docsID: docsID}
}

func (fx *fixture) node(path string) *Node {
	return &Node{fsys: fx.fs, path: path}
}

func readDir(t *testing.T, stream fs.DirStream) map[string]uint32 {
	t.Helper()
	entries := make(map[string]uint32)
	for stream.HasNext() {
		entry, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		entries[entry.Name] = entry.Mode
	}
	return entries
}

func TestNode_GetattrRoot(t *testing.T) {
	fx := newFixture(t)

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), fx.root.Getattr(context.Background(), nil, &out))
	assert.Equal(t, uint32(types.ModeDir|0o755), out.Mode)
	assert.Equal(t, uint64(4096), out.Size)
	assert.Equal(t, uint32(2), out.Nlink)
}

func TestNode_Readdir(t *testing.T) {
	fx := newFixture(t)

	stream, errno := fx.root.Readdir(context.Background())
	require.Equal(t, syscall.Errno(0), errno)

	entries := readDir(t, stream)
	assert.Equal(t, map[string]uint32{
		"notes.txt": syscall.S_IFREG,
		"docs":      syscall.S_IFDIR,
	}, entries)
	assert.Equal(t, 1, fx.remote.Calls(types.CallListChildren))
}

func TestNode_ReaddirRemoteFailure(t *testing.T) {
	fx := newFixture(t)
	fx.remote.FailNext(types.CallListChildren, stderrors.New("connection reset"))

	_, errno := fx.root.Readdir(context.Background())
	assert.Equal(t, syscall.EIO, errno)
	assert.Equal(t, int64(1), fx.fs.GetStats().Errors)
}

func TestNode_GetattrMissing(t *testing.T) {
	fx := newFixture(t)

	var out fuse.AttrOut
	assert.Equal(t, syscall.ENOENT, fx.node("/missing.txt").Getattr(context.Background(), nil, &out))
	assert.Equal(t, syscall.ENOENT, fx.node("/no/such/file").Getattr(context.Background(), nil, &out))
}

func TestNode_ChildAttr(t *testing.T) {
	fx := newFixture(t)
	fx.fs.config.EntryTimeout = 3 * time.Second

	var out fuse.EntryOut
	path, attr, errno := fx.root.childAttr(context.Background(), "notes.txt", &out)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "/notes.txt", path)
	assert.False(t, attr.IsDir())
	assert.Equal(t, uint64(5), out.Size)
	assert.Equal(t, uint64(3), out.EntryValid)

	_, _, errno = fx.root.childAttr(context.Background(), "nope", &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestNode_ReadWrite(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, errno := fx.root.Readdir(ctx)
	require.Equal(t, syscall.Errno(0), errno)

	note := fx.node("/notes.txt")

	written, errno := note.Write(ctx, nil, []byte("J"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(1), written)

	_, content, ok := fx.remote.Object(fx.noteID)
	require.True(t, ok)
	assert.Equal(t, "Jello", string(content))

	result, errno := note.Read(ctx, nil, make([]byte, 3), 1)
	require.Equal(t, syscall.Errno(0), errno)
	data, status := result.Bytes(nil)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "ell", string(data))

	stats := fx.fs.GetStats()
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, int64(1), stats.BytesWritten)
	assert.Equal(t, int64(3), stats.BytesRead)
}

func TestNode_WriteUncached(t *testing.T) {
	fx := newFixture(t)

	_, errno := fx.node("/notes.txt").Write(context.Background(), nil, []byte("x"), 0)
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, 0, fx.remote.Calls(types.CallSetContent))
}

func TestNode_SetattrSizeIsNoop(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, _ = fx.root.Readdir(ctx)

	in := &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{Valid: fuse.FATTR_SIZE, Size: 0}}
	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), fx.node("/notes.txt").Setattr(ctx, nil, in, &out))
	assert.Equal(t, uint64(5), out.Size)
	assert.Equal(t, 0, fx.remote.Calls(types.CallSetContent))
}

func TestNode_OpenIsDirectIO(t *testing.T) {
	fx := newFixture(t)

	fh, flags, errno := fx.node("/anything").Open(context.Background(), uint32(os.O_RDONLY))
	assert.Nil(t, fh)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)
	assert.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, int64(1), fx.fs.GetStats().Opens)
}

func TestNode_RemoveTrashesRemote(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, _ = fx.root.Readdir(ctx)

	assert.Equal(t, syscall.Errno(0), fx.root.Unlink(ctx, "notes.txt"))
	assert.Equal(t, syscall.Errno(0), fx.root.Rmdir(ctx, "docs"))
	assert.Equal(t, syscall.ENOENT, fx.root.Unlink(ctx, "notes.txt"))

	for _, id := range []string{fx.noteID, fx.docsID} {
		obj, _, ok := fx.remote.Object(id)
		require.True(t, ok)
		assert.True(t, obj.Trashed, id)
	}
	assert.Equal(t, 2, fx.remote.Calls(types.CallTrash))
}

func TestFillAttr(t *testing.T) {
	var out fuse.Attr
	fillAttr(&out, types.Attr{Mode: types.ModeFile | 0o644, Size: -1, Nlink: 2, UID: 7, GID: 8, Atime: 1, Mtime: 2, Ctime: 3})

	assert.Equal(t, uint32(types.ModeFile|0o644), out.Mode)
	assert.Equal(t, uint64(0), out.Size)
	assert.Equal(t, uint32(7), out.Uid)
	assert.Equal(t, uint32(8), out.Gid)
	assert.Equal(t, [3]uint64{1, 2, 3}, [3]uint64{out.Atime, out.Mtime, out.Ctime})
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"/", "a", "/a"},
		{"/a", "b", "/a/b"},
		{"/a/", "b", "/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPath(tt.dir, tt.name))
	}
}

func TestSafeConversions(t *testing.T) {
	assert.Equal(t, uint32(0), safeIntToUint32(-1))
	assert.Equal(t, uint32(10), safeIntToUint32(10))
	assert.Equal(t, int64(1<<63-1), safeUint64ToInt64(1<<64-1))
	assert.Equal(t, uint64(0), safeInt64ToUint64(-5))
}

func TestMountManager_Validation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))

	for _, mountPoint := range []string{"", filepath.Join(dir, "missing"), file} {
		m := NewMountManager(NewFileSystem(nil, nil, nil), &MountConfig{MountPoint: mountPoint}, nil)
		err := m.Mount(context.Background())
		require.Error(t, err, mountPoint)
		assert.Equal(t, errors.ErrCodeMountFailed, errors.Code(err), mountPoint)
		assert.False(t, m.IsMounted())
	}
}

func TestMountManager_UnmountWhenNotMounted(t *testing.T) {
	m := NewMountManager(NewFileSystem(nil, nil, nil), nil, nil)
	assert.Equal(t, "gdrivefs", m.config.FSName)
	assert.Equal(t, errors.ErrCodeMountFailed, errors.Code(m.Unmount()))
	m.Wait()
}

func TestMountManager_BuildFUSEOptions(t *testing.T) {
	m := NewMountManager(nil, &MountConfig{
		MountPoint:  "/mnt/drive",
		AllowOther:  true,
		AttrTimeout: 2 * time.Second,
	}, nil)

	opts := m.buildFUSEOptions()
	assert.Equal(t, "gdrivefs", opts.MountOptions.FsName)
	assert.True(t, opts.MountOptions.AllowOther)
	assert.Equal(t, 2*time.Second, *opts.AttrTimeout)
	assert.Equal(t, time.Duration(0), *opts.EntryTimeout)
}

func TestIsMounted(t *testing.T) {
	mounts := filepath.Join(t.TempDir(), "mounts")
	table := "proc /proc proc rw 0 0\ngdrivefs /mnt/drive fuse.gdrivefs rw 0 0\n"
	require.NoError(t, os.WriteFile(mounts, []byte(table), 0600))

	assert.True(t, isMounted("/mnt/drive/", mounts))
	assert.False(t, isMounted("/mnt", mounts))
	assert.False(t, isMounted("/mnt/drive", filepath.Join(t.TempDir(), "absent")))
}

func TestMount_EndToEnd(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("/dev/fuse not available, skipping FUSE test")
	}

	fx := newFixture(t)
	mountPoint := t.TempDir()
	manager := CreatePlatformMountManager(fx.fs.fsys, &MountConfig{MountPoint: mountPoint}, nil)
	if err := manager.Mount(context.Background()); err != nil {
		t.Skipf("mount not permitted here: %v", err)
	}
	defer func() {
		assert.NoError(t, manager.Unmount())
	}()

	entries, err := os.ReadDir(mountPoint)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"docs", "notes.txt"}, names)

	data, err := os.ReadFile(filepath.Join(mountPoint, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, os.Mkdir(filepath.Join(mountPoint, "docs", "new"), 0755))
	info, err := os.Stat(filepath.Join(mountPoint, "docs", "new"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
