package resolver

import (
	"strings"

	"github.com/gdrivefs/gdrivefs/internal/cache"
	"github.com/gdrivefs/gdrivefs/pkg/errors"
)

// NameSeparatorSubstitute replaces "/" inside remote display names.
const NameSeparatorSubstitute = "-"

// Clean validates an absolute path and strips a trailing slash.
func Clean(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", errors.NewError(errors.ErrCodeInvalidPath, "path must be absolute").
			WithComponent("resolver").
			WithContext("path", path)
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path, nil
}

// Split returns the parent key and leaf name of a clean absolute path.
// Top-level names have parent "/"; the root has parent "/" and leaf "".
func Split(path string) (parent, leaf string) {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return cache.RootKey, path[i+1:]
	}
	return path[:i], path[i+1:]
}

// SanitizeName makes a remote display name usable as a path segment.
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, "/", NameSeparatorSubstitute)
}

// ChildKey builds the canonical cache key of name under parent.
func ChildKey(parent, name string) string {
	name = SanitizeName(name)
	if parent == cache.RootKey {
		return cache.RootKey + name
	}
	return parent + "/" + name
}
