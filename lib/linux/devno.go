// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package linux

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// StatDevno stats path and returns the device number identifying the
// block device it names:
// for a block-device special file this is the device it represents
// (st_rdev); for a regular path (e.g. a bind mount's source
// directory) it is the device number of the filesystem it resides on
// (st_dev), which is what the caller needs to match against a
// mountinfo entry's DevMajor/DevMinor.
func StatDevno(path string) (major, minor uint32, ok bool, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, false, fmt.Errorf("linux: stat %s: %w", path, err)
	}
	dev := uint64(st.Dev)
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		dev = uint64(st.Rdev)
	}
	return unix.Major(dev), unix.Minor(dev), true, nil
}

// Exists reports whether path can be stat'ed, used by the lookup
// engine's udev-symlink tag resolution.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
