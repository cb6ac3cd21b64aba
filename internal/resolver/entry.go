package resolver

import (
	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// Capability-derived permission bits, before replication to user, group and other.
const (
	permRead  uint32 = 4
	permWrite uint32 = 2
	permExec  uint32 = 1
)

// Permissions derives the rwx triple for obj and replicates it across user,
// group and other. Read is always granted; folders are traversable only with
// the list-children capability.
func Permissions(obj *types.RemoteObject) uint32 {
	perm := permRead
	if obj.Capabilities.CanEdit {
		perm |= permWrite
	}
	if obj.IsFolder() && obj.Capabilities.CanListChildren {
		perm |= permExec
	}
	return perm * 0o111
}

// EntryFromObject converts remote metadata into an unfetched cache entry.
// The caller marks it fetched when obj came from a full metadata fetch.
func EntryFromObject(obj *types.RemoteObject) *cache.CachedEntry {
	entry := &cache.CachedEntry{
		RemoteID:   obj.ID,
		Name:       SanitizeName(obj.Title),
		Kind:       cache.KindFile,
		Perm:       Permissions(obj),
		AccessTime: types.ParseTimestamp(obj.LastViewedByMeDate),
		ModifyTime: types.ParseTimestamp(obj.ModifiedDate),
		CreateTime: types.ParseTimestamp(obj.CreatedDate),
	}
	if obj.IsFolder() {
		entry.Kind = cache.KindDirectory
	} else {
		entry.Size = obj.FileSize
	}
	return entry
}
