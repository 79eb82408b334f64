// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package diskio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mapping is a read-only mmap(2) window into a File's underlying fd,
// used by the buffer cache (lib/probe/diskcache) to back a window
// with real pages instead of a read(2)-filled buffer.
type Mapping struct {
	Off  Addr
	data []byte
}

// Mmap maps [off, off+length) of the file backing fd into memory,
// read-only and shared.
func Mmap(fd int, off Addr, length int) (*Mapping, error) {
	if length <= 0 {
		return nil, fmt.Errorf("diskio.Mmap: non-positive length %d", length)
	}
	data, err := unix.Mmap(fd, int64(off), length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("diskio.Mmap: %w", err)
	}
	return &Mapping{Off: off, data: data}, nil
}

func (m *Mapping) Bytes() []byte { return m.data }

func (m *Mapping) Len() int { return len(m.data) }

func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
