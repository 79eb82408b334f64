// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package diskio

import (
	"io"
	"os"
)

func blockDeviceSize(f *os.File) (int64, error) {
	return f.Seek(0, io.SeekEnd)
}
