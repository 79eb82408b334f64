// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package containers holds the small generic containers the rest of
// the library leans on.
package containers

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a typed wrapper around an adaptive-replacement cache,
// used to memoize path canonicalization results
// (lib/mount/pathcache).  A zero LRUCache is usable and holds 128
// items; use NewLRUCache to pick a different size.
type LRUCache[K comparable, V any] struct {
	initOnce sync.Once
	inner    *lru.ARCCache
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	c := new(LRUCache[K, V])
	c.initOnce.Do(func() {
		c.inner, _ = lru.NewARC(size)
	})
	return c
}

func (c *LRUCache[K, V]) init() {
	c.initOnce.Do(func() {
		c.inner, _ = lru.NewARC(128)
	})
}

func (c *LRUCache[K, V]) Add(key K, value V) {
	c.init()
	c.inner.Add(key, value)
}

func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.init()
	_value, ok := c.inner.Get(key)
	if ok {
		value = _value.(V)
	}
	return value, ok
}

func (c *LRUCache[K, V]) Len() int {
	c.init()
	return c.inner.Len()
}

// Purge empties the cache; pathcache offers this for callers that
// know the symlink farm changed underneath a long-lived table.
func (c *LRUCache[K, V]) Purge() {
	c.init()
	c.inner.Purge()
}
