// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoopBackingFile reads a loop device's backing file and byte offset
// out of sysfs, for the is-mounted algorithm's loop-device
// comparisons.  ok is false when
// devicePath does not name a loop device currently bound to a file.
func LoopBackingFile(devicePath string) (backingFile string, offset int64, ok bool) {
	base := filepath.Base(devicePath)
	if !strings.HasPrefix(base, "loop") {
		return "", 0, false
	}
	sysDir := filepath.Join("/sys/class/block", base, "loop")
	backingRaw, err := os.ReadFile(filepath.Join(sysDir, "backing_file"))
	if err != nil {
		return "", 0, false
	}
	backingFile = strings.TrimSpace(string(backingRaw))
	if backingFile == "" {
		return "", 0, false
	}
	if offRaw, err := os.ReadFile(filepath.Join(sysDir, "offset")); err == nil {
		if off, err := strconv.ParseInt(strings.TrimSpace(string(offRaw)), 10, 64); err == nil {
			offset = off
		}
	}
	return backingFile, offset, true
}
