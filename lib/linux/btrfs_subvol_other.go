// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package linux

import "fmt"

// BtrfsDefaultSubvolID is unsupported outside Linux.
func BtrfsDefaultSubvolID(mountpoint string) (uint64, error) {
	return 0, fmt.Errorf("linux: BtrfsDefaultSubvolID: not supported on this platform")
}
