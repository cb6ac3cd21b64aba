/*
Package types provides the core interfaces and data structures shared across gdrivefs.

# Architecture Overview

	┌─────────────────────────────────────────────┐
	│          FUSE surface (internal/fuse)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│     FilesystemAdapter (internal/filesystem) │
	└─────────────────────────────────────────────┘
	          │                      │
	┌─────────┴──────────┐ ┌─────────┴──────────┐
	│ PathResolver       │ │ MetadataCache      │
	│ (internal/resolver)│ │ (internal/cache)   │
	└────────────────────┘ └────────────────────┘
	          │
	┌─────────┴───────────────────────────────────┐
	│  RemoteClient (gdrive, s3, memory)          │
	└─────────────────────────────────────────────┘

# Core Interfaces

RemoteClient:
The capability set required from a cloud provider: create, list children,
fetch full metadata, get and set content, and trash. Implementations live
under internal/storage.

MetricsCollector:
Operation, remote call and cache accounting, implemented by internal/metrics.

# Data Structures

RemoteObject:
Provider-neutral object metadata. Timestamps stay in their ISO-8601 string
form; ParseTimestamp converts them to Unix seconds with missing values
mapped to 0.

Handle:
Reference to an object created by this process, carrying the last content
uploaded through it.

Attr:
The POSIX attribute set reported by getattr.
*/
package types
