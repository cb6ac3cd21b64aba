/*
Package fuse mounts a filesystem.Filesystem on the host.

Two surfaces are available, chosen at build time:

  - The default build uses github.com/hanwen/go-fuse/v2. Every inode is a
    Node that carries its absolute path and forwards the kernel request to
    the Filesystem under that path.
  - Building with the cgofuse tag uses github.com/winfsp/cgofuse instead,
    which also runs on macOS (macFUSE) and Windows (WinFsp). CgoFuseFS
    receives paths directly from the host.

Both surfaces are created through CreatePlatformMountManager:

	manager := fuse.CreatePlatformMountManager(adapter, &fuse.MountConfig{
		MountPoint:   "/mnt/drive",
		FSName:       "gdrivefs",
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
	}, logger)
	if err := manager.Mount(ctx); err != nil {
		return err
	}
	defer manager.Unmount()
	manager.Wait()

# Errors

NOT_FOUND becomes ENOENT, INVALID_PATH becomes EINVAL and everything else
becomes EIO. Mount failures are MOUNT_FAILED errors carrying the mount
point in their context.

# I/O

Files are opened with direct I/O, so every read reaches the Filesystem and
sizes reported after a write are never served from the page cache. A write
reports the full length of the data it was given. Truncation through
setattr is accepted and ignored.

# Directory Listings

The Filesystem returns "." and ".." first. The go-fuse surface leaves them
out of its DirStream; cgofuse passes them to the host.
Entry types in go-fuse listings come from the children the listing just
cached, so they cost no remote calls.
*/
package fuse
