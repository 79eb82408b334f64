// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package diskio

import "fmt"

// Mapping mirrors the linux implementation's shape so that callers
// can be built on other platforms, even though Mmap always fails.
type Mapping struct {
	Off  Addr
	data []byte
}

func Mmap(fd int, off Addr, length int) (*Mapping, error) {
	return nil, fmt.Errorf("diskio.Mmap: not supported on this platform")
}

func (m *Mapping) Bytes() []byte { return m.data }

func (m *Mapping) Len() int { return len(m.data) }

func (m *Mapping) Close() error { return nil }
