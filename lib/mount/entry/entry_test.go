// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package entry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/mount/entry"
)

func TestNewParsesTagSource(t *testing.T) {
	t.Parallel()
	e := entry.New("LABEL=rootfs", "/", "ext4", "rw", "")
	assert.True(t, e.HasTag)
	assert.Equal(t, "LABEL", e.Tag.Name)
	assert.Equal(t, "rootfs", e.Tag.Value)
}

func TestNewLeavesNonTagSourceAlone(t *testing.T) {
	t.Parallel()
	e := entry.New("/dev/sda1", "/", "ext4", "rw", "")
	assert.False(t, e.HasTag)
}

func TestOptions(t *testing.T) {
	t.Parallel()
	e := entry.New("/dev/sda1", "/mnt", "ext4", "rw,noatime", "data=ordered")
	assert.Equal(t, "rw,noatime,data=ordered", e.Options())
	assert.True(t, e.HasOption("noatime"))
	assert.False(t, e.HasOption("ro"))
	v, ok := e.OptionValue("data")
	require.True(t, ok)
	assert.Equal(t, "ordered", v)
}

func TestClassification(t *testing.T) {
	t.Parallel()
	assert.True(t, entry.New("none", "/proc", "proc", "", "").IsPseudoFS())
	assert.True(t, entry.New("/dev/sda5", "none", "swap", "", "sw").IsSwap())
	assert.True(t, entry.New("server:/export", "/mnt", "nfs4", "", "").IsNetFS())
	assert.False(t, entry.New("/dev/sda1", "/", "ext4", "", "").IsNetFS())
}

func TestRefcount(t *testing.T) {
	t.Parallel()
	e := entry.New("/dev/sda1", "/", "ext4", "", "")
	e.Ref()
	e.Ref()
	assert.False(t, e.Unref())
	assert.True(t, e.Unref())
}

func TestDevno(t *testing.T) {
	t.Parallel()
	e := &entry.Entry{DevMajor: 8, DevMinor: 1}
	assert.Equal(t, uint64(8)<<32|1, e.Devno())
}
