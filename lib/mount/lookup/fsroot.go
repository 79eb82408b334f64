// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lookup

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lukeshu/blkid-go/lib/linux"
	"github.com/lukeshu/blkid-go/lib/mount/entry"
)

// DefaultSubvolIDFunc queries the kernel for a filesystem's default
// btrfs subvolume ID.  It may fail on older kernels;
// callers of DeriveFSRoot should treat a non-nil error as "unknown,
// degrade gracefully", not as fatal.
type DefaultSubvolIDFunc func(mountpoint string) (uint64, error)

// KernelDefaultSubvolID is the real, kernel-backed
// DefaultSubvolIDFunc, grounded on the BTRFS_IOC_DEFAULT_SUBVOL
// ioctl (lib/linux.BtrfsDefaultSubvolID). Tests and other platforms
// should pass a stub instead.
var KernelDefaultSubvolID DefaultSubvolIDFunc = linux.BtrfsDefaultSubvolID

// DeriveFSRoot: given a fstab-style entry and
// a mountinfo-style table (e is looked up by the caller's
// mountinfoEngine, which must be bound to the live /proc/self/mountinfo
// table), compute the fs-root the kernel will report after e is
// mounted.
//
//   - Bind mounts: resolve e's source to a path, find its mountpoint
//     in mountinfoEngine, and strip that mountpoint as a prefix from
//     the source path. A nested bind (the mountpoint entry itself has
//     a non-root fs-root) prepends that root to preserve transitivity.
//   - btrfs subvolumes: look up subvolid (explicit, or queried from
//     the kernel when neither subvolid nor subvol is given) among
//     entries sharing e's target, and copy that entry's subvol= value.
func DeriveFSRoot(e *entry.Entry, mountinfoEngine *Engine, defaultSubvolID DefaultSubvolIDFunc) (string, error) {
	if e.HasOption("bind") || e.Type == "none" {
		return deriveBindFSRoot(e, mountinfoEngine)
	}
	if e.Type == "btrfs" {
		return deriveBtrfsFSRoot(e, mountinfoEngine, defaultSubvolID)
	}
	return "/", nil
}

func deriveBindFSRoot(e *entry.Entry, mountinfoEngine *Engine) (string, error) {
	source := e.Source
	if source == "" {
		return "", fmt.Errorf("lookup: deriveFSRoot: bind mount has no source")
	}
	canonSource := source
	if mountinfoEngine.Cache != nil {
		canonSource = mountinfoEngine.Cache.Canonicalize(source)
	}
	mountEntry, err := mountinfoEngine.FindMountpoint(canonSource, Backward)
	if err != nil {
		return "", fmt.Errorf("lookup: deriveFSRoot: %w", err)
	}
	rel := strings.TrimPrefix(canonSource, mountEntry.Target)
	if rel == "" {
		rel = "/"
	} else if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	if mountEntry.Root != "" && mountEntry.Root != "/" {
		rel = filepath.Join(mountEntry.Root, rel)
	}
	return rel, nil
}

func deriveBtrfsFSRoot(e *entry.Entry, mountinfoEngine *Engine, defaultSubvolID DefaultSubvolIDFunc) (string, error) {
	if subvol, ok := e.OptionValue("subvol"); ok {
		return normalizeSubvolPath(subvol), nil
	}

	subvolID, ok := e.OptionValue("subvolid")
	if !ok {
		if defaultSubvolID == nil {
			return "/", nil
		}
		id, err := defaultSubvolID(e.Target)
		if err != nil {
			// Degrade gracefully: older kernels may not
			// support the query.
			return "/", nil
		}
		subvolID = fmt.Sprintf("%d", id)
	}

	for _, cand := range mountinfoEngine.Table.Entries() {
		if cand.Target != e.Target {
			continue
		}
		if id, ok := cand.OptionValue("subvolid"); ok && id == subvolID {
			if subvol, ok := cand.OptionValue("subvol"); ok {
				return normalizeSubvolPath(subvol), nil
			}
		}
	}
	return "/", nil
}

func normalizeSubvolPath(subvol string) string {
	if subvol == "" || subvol == "/" {
		return "/"
	}
	if !strings.HasPrefix(subvol, "/") {
		subvol = "/" + subvol
	}
	return subvol
}
