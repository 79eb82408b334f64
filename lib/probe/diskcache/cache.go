// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskcache implements the flat, non-evicting buffer cache
// that backs a single probing pass over a device: byte ranges are
// appended in order of first use and are never split, merged, or
// evicted mid-probe, only reset wholesale.
package diskcache

import (
	"fmt"
	"os"

	"github.com/lukeshu/blkid-go/lib/probe/diskio"
)

// mmapable is implemented by diskio.File backends that can donate a
// raw fd for mmap(2); *diskio.OSFile satisfies it on regular files
// and block devices.
type mmapable interface {
	Fd() uintptr
	Mappable() bool
}

type bufrange struct {
	off     diskio.Addr // real device offset
	data    []byte
	mapping *diskio.Mapping // non-nil when data is backed by mmap
}

func (r *bufrange) contains(off diskio.Addr, length int) bool {
	end := r.off + diskio.Addr(len(r.data))
	return off >= r.off && off < end && off+diskio.Addr(length) <= end
}

// Cache is the buffer cache for a single prober (or a clone, in which
// case it forwards reads that fall entirely within the parent's
// window to the parent's cache instead of allocating its own range).
type Cache struct {
	file       diskio.File
	mmapFd     uintptr
	mmapOK     bool
	parent     *Cache
	windowOff  diskio.Addr
	windowSize diskio.Addr
	ranges     []*bufrange
}

const mmapWindow = 2 * 1024 * 1024  // 2 MiB
const mmapMinWindow = 1024 * 1024   // 1 MiB

// New creates a buffer cache over the given window of file. parent
// may be nil; when non-nil, reads that the parent's window fully
// covers are forwarded to it instead of being cached locally.
func New(file diskio.File, windowOff, windowSize diskio.Addr, parent *Cache) *Cache {
	c := &Cache{
		file:       file,
		parent:     parent,
		windowOff:  windowOff,
		windowSize: windowSize,
	}
	if m, ok := file.(mmapable); ok && m.Mappable() {
		c.mmapFd = m.Fd()
		c.mmapOK = true
	}
	return c
}

// Get returns a slice covering [offsetWithinWindow, offsetWithinWindow+length)
// relative to the cache's window, satisfying it from an existing
// cached range, the parent cache, or a freshly allocated range.
func (c *Cache) Get(offsetWithinWindow diskio.Addr, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("diskcache: invalid-argument: non-positive length %d", length)
	}
	if offsetWithinWindow < 0 || offsetWithinWindow+diskio.Addr(length) > c.windowSize {
		return nil, fmt.Errorf("diskcache: invalid-argument: request [%d,%d) escapes window of size %d",
			offsetWithinWindow, offsetWithinWindow+diskio.Addr(length), c.windowSize)
	}
	realOff := c.windowOff + offsetWithinWindow

	if c.parent != nil && c.parentCovers(realOff, length) {
		return c.parent.Get(realOff-c.parent.windowOff, length)
	}

	for _, r := range c.ranges {
		if r.contains(realOff, length) {
			start := realOff - r.off
			return r.data[start : start+diskio.Addr(length)], nil
		}
	}

	r, err := c.allocate(realOff, length)
	if err != nil {
		return nil, err
	}
	c.ranges = append(c.ranges, r)
	start := realOff - r.off
	return r.data[start : start+diskio.Addr(length)], nil
}

func (c *Cache) parentCovers(realOff diskio.Addr, length int) bool {
	return realOff >= c.parent.windowOff &&
		realOff+diskio.Addr(length) <= c.parent.windowOff+c.parent.windowSize
}

func (c *Cache) allocate(realOff diskio.Addr, length int) (*bufrange, error) {
	if c.mmapOK {
		return c.allocateMmap(realOff, length)
	}
	return c.allocateRead(realOff, length)
}

func (c *Cache) allocateRead(realOff diskio.Addr, length int) (*bufrange, error) {
	buf := make([]byte, length)
	n, err := c.file.ReadAt(buf, realOff)
	if err != nil {
		return nil, err
	}
	return &bufrange{off: realOff, data: buf[:n]}, nil
}

func (c *Cache) allocateMmap(realOff diskio.Addr, length int) (*bufrange, error) {
	devSize := c.file.Size()
	reqEnd := realOff + diskio.Addr(length)

	var winOff, winLen diskio.Addr
	switch {
	case realOff < mmapWindow:
		winOff = 0
		winLen = devSize
		if winLen > mmapWindow {
			winLen = mmapWindow
		}
	case devSize-realOff <= mmapWindow || (devSize >= mmapWindow && reqEnd > devSize-mmapWindow):
		winOff = devSize - mmapWindow
		if winOff < 0 {
			winOff = 0
		}
		winLen = devSize - winOff
	default:
		pageSize := diskio.Addr(os.Getpagesize())
		winOff = (realOff / pageSize) * pageSize
		winLen = mmapMinWindow
		if winOff+winLen < reqEnd {
			winLen = reqEnd - winOff
		}
	}
	if winOff+winLen > devSize {
		winLen = devSize - winOff
	}

	m, err := diskio.Mmap(int(c.mmapFd), winOff, int(winLen))
	if err != nil {
		return c.allocateRead(realOff, length)
	}
	return &bufrange{off: winOff, data: m.Bytes(), mapping: m}, nil
}

// Reset discards every cached range (and unmaps any mmapped ones),
// as required on device change, window change, or step-back.
func (c *Cache) Reset() {
	for _, r := range c.ranges {
		if r.mapping != nil {
			_ = r.mapping.Close()
		}
	}
	c.ranges = nil
}

// SetWindow changes the window this cache covers and resets it, per
// the same rule as a device change.
func (c *Cache) SetWindow(off, size diskio.Addr) {
	c.Reset()
	c.windowOff = off
	c.windowSize = size
}
