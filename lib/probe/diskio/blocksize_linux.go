// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package diskio

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BLKGETSIZE64 asks the kernel for the size, in bytes, of a block
// device; linux/fs.h defines it as _IOR(0x12, 114, size_t).
const blkGetSize64 = 0x80081272

func blockDeviceSize(f *os.File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}
