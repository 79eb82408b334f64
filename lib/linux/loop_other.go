// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package linux

// LoopBackingFile is unsupported outside Linux; callers treat ok=false
// as "not a loop device".
func LoopBackingFile(devicePath string) (backingFile string, offset int64, ok bool) {
	return "", 0, false
}
