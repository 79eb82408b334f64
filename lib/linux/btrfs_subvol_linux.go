// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package linux

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// btrfsIOCDefaultSubvol is BTRFS_IOC_DEFAULT_SUBVOL from
// linux/btrfs.h: _IOW(BTRFS_IOCTL_MAGIC=0x94, 19, __u64). Despite the
// _IOW encoding the kernel treats the argument as an out-parameter,
// writing the filesystem's default subvolume id into it.
const btrfsIOCDefaultSubvol = 0x40089413

// BtrfsDefaultSubvolID queries the kernel for mountpoint's default
// btrfs subvolume id.  Older kernels, or a mountpoint
// that isn't a btrfs filesystem, cause this to fail; callers are
// expected to degrade gracefully rather than treat that as fatal.
func BtrfsDefaultSubvolID(mountpoint string) (uint64, error) {
	f, err := os.Open(mountpoint)
	if err != nil {
		return 0, fmt.Errorf("linux: btrfs default subvol: %w", err)
	}
	defer f.Close()

	var id uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), btrfsIOCDefaultSubvol, uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return 0, fmt.Errorf("linux: btrfs default subvol: %w", errno)
	}
	return id, nil
}
