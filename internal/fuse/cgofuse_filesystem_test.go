//go:build cgofuse
// +build cgofuse

package fuse

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/internal/filesystem"
	"github.com/gdrivefs/gdrivefs/internal/storage/memory"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

func newCgoFixture(t *testing.T) (*CgoFuseFS, *memory.Client) {
	t.Helper()
	remote := memory.New()
	remote.Put(types.RootID, "notes.txt", "text/plain", []byte("hello"))
	adapter := filesystem.New(remote, cache.NewMetadataCache(cache.Config{}), filesystem.Config{})
	return NewCgoFuseFS(adapter, nil), remote
}

func TestCgoFuseFS_ReaddirKeepsDots(t *testing.T) {
	c, _ := newCgoFixture(t)

	var names []string
	status := c.Readdir("/", func(name string, stat *fuse.Stat_t, ofst int64) bool {
		names = append(names, name)
		return true
	}, 0, 0)

	require.Equal(t, 0, status)
	assert.Equal(t, []string{".", "..", "notes.txt"}, names)
}

func TestCgoFuseFS_ReadWrite(t *testing.T) {
	c, _ := newCgoFixture(t)
	c.Readdir("/", func(string, *fuse.Stat_t, int64) bool { return true }, 0, 0)

	assert.Equal(t, 2, c.Write("/notes.txt", []byte("HE"), 0, 0))

	buff := make([]byte, 16)
	n := c.Read("/notes.txt", buff, 0, 0)
	assert.Equal(t, "HEllo", string(buff[:n]))

	var stat fuse.Stat_t
	require.Equal(t, 0, c.Getattr("/notes.txt", &stat, 0))
	assert.Equal(t, int64(5), stat.Size)
}

func TestCgoFuseFS_Errors(t *testing.T) {
	c, remote := newCgoFixture(t)

	var stat fuse.Stat_t
	assert.Equal(t, -fuse.ENOENT, c.Getattr("/missing", &stat, 0))

	remote.FailNext(types.CallListChildren, stderrors.New("boom"))
	assert.Equal(t, -fuse.EIO, c.Readdir("/", func(string, *fuse.Stat_t, int64) bool { return true }, 0, 0))
	assert.Equal(t, int64(2), c.GetStats().Errors)
}
