/*
Package cache provides the path-keyed metadata cache that stands in for an
inode table.

Every filesystem node the mount has seen is kept as a CachedEntry under its
canonical absolute path. The cache is the single source of truth for
attribute queries; remote metadata is fetched lazily and written back here.

	┌─────────────────────────────────────────────┐
	│            FilesystemAdapter                │
	└─────────────────────────────────────────────┘
	                      │  Get / Put / DeleteTree
	┌─────────────────────────────────────────────┐
	│              MetadataCache                  │  ← This Package
	│   "/"        → root (synthetic)             │
	│   "/docs"    → directory, Expanded          │
	│   "/docs/a"  → file, Fetched                │
	│   "/new"     → file, Handle, !Fetched       │
	└─────────────────────────────────────────────┘

# Staleness Policy

An entry needs a metadata refetch when it was never fetched (created
locally in this session, or invalidated by a write), or when TTL is positive
and the last fetch is older than TTL. The root is synthesized once and never
refetched. A directory listing needs a remote query until it has been
expanded once, and again after ListingTTL when that is positive.

	created ──► !Fetched ──getattr──► Fetched ──write──► !Fetched
	                                     │
	                                     └── TTL elapsed ──► stale

# Concurrency

MetadataCache has no internal locking. The filesystem adapter owns the
cache and serializes every operation.
*/
package cache
