// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lookup_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/mount/entry"
	"github.com/lukeshu/blkid-go/lib/mount/lookup"
	"github.com/lukeshu/blkid-go/lib/mount/parse"
	"github.com/lukeshu/blkid-go/lib/mount/pathcache"
	"github.com/lukeshu/blkid-go/lib/mount/table"
)

func mountinfoTable(t *testing.T, data string) *table.Table {
	t.Helper()
	tbl := table.New()
	require.NoError(t, parse.Mountinfo(strings.NewReader(data), tbl))
	return tbl
}

// TestMountinfoFindTargetAndAscent: a single /proc/self/mountinfo
// line for /home, looked up both directly and by ascending from a
// path underneath it.
func TestMountinfoFindTargetAndAscent(t *testing.T) {
	t.Parallel()
	tbl := mountinfoTable(t, "23 17 0:21 / /home rw,relatime - ext4 /dev/sda1 rw\n")
	eng := lookup.New(tbl)

	found, err := eng.FindTarget("/home", lookup.Backward)
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda1", found.Source)

	ascended, err := eng.FindMountpoint("/home/alice/x", lookup.Backward)
	require.NoError(t, err)
	assert.Same(t, found, ascended)
}

func TestFindPairAndDevno(t *testing.T) {
	t.Parallel()
	tbl := mountinfoTable(t, "23 17 8:1 / / rw - ext4 /dev/sda1 rw\n24 23 8:2 / /home rw - ext4 /dev/sda2 rw\n")
	eng := lookup.New(tbl)

	e, err := eng.FindPair("/dev/sda2", "/home", lookup.Forward)
	require.NoError(t, err)
	assert.Equal(t, "/home", e.Target)

	e2, err := eng.FindDevno(uint64(8)<<32|1, lookup.Forward)
	require.NoError(t, err)
	assert.Equal(t, "/", e2.Target)

	_, err = eng.FindDevno(uint64(99)<<32|99, lookup.Forward)
	assert.ErrorIs(t, err, lookup.ErrNotFound)
}

func TestFindSourceDispatchesTagVsPath(t *testing.T) {
	t.Parallel()
	tbl := table.New()
	tbl.Add(entry.New("LABEL=rootfs", "/", "ext4", "", ""))
	tbl.Add(entry.New("/dev/sdb1", "/data", "ext4", "", ""))
	eng := lookup.New(tbl)

	byTag, err := eng.FindSource("LABEL=rootfs", lookup.Forward)
	require.NoError(t, err)
	assert.Equal(t, "/", byTag.Target)

	byPath, err := eng.FindSource("/dev/sdb1", lookup.Forward)
	require.NoError(t, err)
	assert.Equal(t, "/data", byPath.Target)
}

func TestBtrfsSubvolFSRoot(t *testing.T) {
	t.Parallel()
	mi := mountinfoTable(t, strings.Join([]string{
		"30 1 0:40 /@home /home rw - btrfs /dev/sdb1 rw,subvolid=256,subvol=/@home",
		"",
	}, "\n"))
	eng := lookup.New(mi)

	// An explicit subvol= option wins outright.
	explicit := entry.New("/dev/sdb1", "/home", "btrfs", "", "subvol=@home")
	root, err := lookup.DeriveFSRoot(explicit, eng, nil)
	require.NoError(t, err)
	assert.Equal(t, "/@home", root)

	// A subvolid= option is resolved through an entry sharing the
	// target.
	byID := entry.New("/dev/sdb1", "/home", "btrfs", "", "subvolid=256")
	root, err = lookup.DeriveFSRoot(byID, eng, nil)
	require.NoError(t, err)
	assert.Equal(t, "/@home", root)

	// Neither option: the kernel-queried default subvolume id is
	// used; a failing query degrades to "/".
	bare := entry.New("/dev/sdb1", "/home", "btrfs", "", "")
	root, err = lookup.DeriveFSRoot(bare, eng, func(string) (uint64, error) {
		return 256, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/@home", root)

	root, err = lookup.DeriveFSRoot(bare, eng, func(string) (uint64, error) {
		return 0, assert.AnError
	})
	require.NoError(t, err)
	assert.Equal(t, "/", root)
}

// TestBindMountFSRootAndIsMounted: fstab `/src /dst none bind 0 0`;
// mountinfo shows /dev/sda1 mounted at /srcparent with fs-root /,
// and /dev/sda1 at /dst with fs-root /src.  IsFSMounted must report
// true.
func TestBindMountFSRootAndIsMounted(t *testing.T) {
	t.Parallel()
	mi := mountinfoTable(t, strings.Join([]string{
		"10 1 8:1 / /srcparent rw - ext4 /dev/sda1 rw",
		"11 1 8:1 /src /dst rw - ext4 /dev/sda1 rw",
		"",
	}, "\n"))
	eng := lookup.New(mi)
	eng.Cache = pathcache.New()
	eng.StatDevno = func(path string) (uint32, uint32, bool) {
		if path == "/srcparent/src" {
			return 8, 1, true
		}
		return 0, 0, false
	}

	fstabEntry := entry.New("/srcparent/src", "/dst", "none", "", "bind")

	root, err := lookup.DeriveFSRoot(fstabEntry, eng, nil)
	require.NoError(t, err)
	assert.Equal(t, "/src", root)

	mounted, err := lookup.IsFSMounted(fstabEntry, eng, nil)
	require.NoError(t, err)
	assert.True(t, mounted)
}
