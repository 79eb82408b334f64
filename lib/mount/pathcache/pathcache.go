// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathcache implements the reference-counted,
// caller-synchronized path-canonicalization cache the lookup
// engine's later lookup passes consult.  It is explicitly shareable
// between tables and carries no internal locking.  Unlike the probe
// buffer cache (which must never evict mid-probe), canonicalization
// results are free to be evicted, so an LRU
// (lib/containers.LRUCache) backs it.
package pathcache

import (
	"os"
	"path/filepath"

	"github.com/lukeshu/blkid-go/lib/containers"
)

const defaultSize = 256

// Cache memoizes filepath.EvalSymlinks results. A zero Cache is not
// usable; use New.
type Cache struct {
	resolved *containers.LRUCache[string, string]
	refs     int32
}

// New creates a path cache with the conventional LRU size.
func New() *Cache {
	return &Cache{resolved: containers.NewLRUCache[string, string](defaultSize)}
}

// Ref increments the cache's reference count; a cache is shared
// explicitly between tables.
func (c *Cache) Ref() { c.refs++ }

// Unref decrements the reference count and reports whether it reached
// zero.
func (c *Cache) Unref() bool {
	c.refs--
	return c.refs <= 0
}

// Canonicalize resolves path to its canonical absolute form,
// following symlinks, memoizing the result. A path whose symlinks
// cannot be resolved is returned made absolute and cleaned, without
// symlink resolution (matching libmount's tolerant
// canonicalization, since mount tables may reference devices or
// mountpoints that briefly do not exist).
func (c *Cache) Canonicalize(path string) string {
	if v, ok := c.resolved.Get(path); ok {
		return v
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if abs, aerr := filepath.Abs(path); aerr == nil {
			resolved = filepath.Clean(abs)
		} else {
			resolved = path
		}
	}
	c.resolved.Add(path, resolved)
	return resolved
}

// Purge empties the memoized resolutions, for callers that know the
// symlink farm has changed underneath a long-lived table.
func (c *Cache) Purge() { c.resolved.Purge() }

// Exists reports whether path can be stat'ed; cached results are not
// memoized here since existence can change underneath a long-lived
// table (e.g. removable media), unlike a symlink target.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
