/*
Package s3 exposes an S3 bucket as a hierarchical remote store for the
gdrivefs filesystem core.

# Key Layout

A mount of s3://bucket/team maps ids to keys like this:

	root            -> team/          (the prefix, never written)
	team/docs/      -> folder marker  (zero bytes, key ends in "/")
	team/docs/a.txt -> file
	.trash/team/docs/a.txt            (trashed copy)

Folders created by other tools often have no marker object. They are still
listed, through the CommonPrefixes of a delimited listing, and FetchMetadata
reports them as folders as long as some key lives below them.

# Metadata

The creation time of an object is kept in the "created" user metadata
entry and carried over on every upload. Objects written by other tools fall
back to their last-modified time.

# Errors

NoSuchKey and NotFound responses become NOT_FOUND errors. Throttling codes
(SlowDown, RequestTimeout, ...) and HTTP 429/5xx responses are marked
transient so the resilient client retries them; everything else fails
immediately.

# Credentials

Static credentials from the configuration take precedence over the default
AWS provider chain (environment, shared config, instance role). Endpoint and
ForcePathStyle support MinIO and other S3-compatible stores.
*/
package s3
