// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !linux

package linux

import (
	"fmt"
	"os"
)

// StatDevno is unsupported outside Linux; the lookup engine's devno
// comparisons degrade to path-only matching on these platforms.
func StatDevno(path string) (major, minor uint32, ok bool, err error) {
	return 0, 0, false, fmt.Errorf("linux: StatDevno: not supported on this platform")
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
