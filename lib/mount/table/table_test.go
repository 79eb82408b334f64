// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package table_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lukeshu/blkid-go/lib/mount/entry"
	"github.com/lukeshu/blkid-go/lib/mount/table"
)

func TestAddIncrementsCountAndRefcount(t *testing.T) {
	t.Parallel()
	tbl := table.New()
	e := entry.New("/dev/sda1", "/", "ext4", "", "")
	e.Ref() // the caller's own reference
	tbl.Add(e)
	assert.Equal(t, 1, tbl.NumEntries())
	assert.False(t, e.Unref(), "Add should have taken a reference")
}

func TestIterateForwardAndBackward(t *testing.T) {
	t.Parallel()
	tbl := table.New()
	first := entry.New("/dev/sda1", "/", "ext4", "", "")
	second := entry.New("/dev/sda2", "/home", "ext4", "", "")
	tbl.Add(first)
	tbl.Add(second)

	fwd := tbl.Iterate(table.Forward)
	assert.Equal(t, []*entry.Entry{first, second}, fwd)

	back := tbl.Iterate(table.Backward)
	assert.Equal(t, []*entry.Entry{second, first}, back)
}

func TestUniqFSPreservesSurvivorOrder(t *testing.T) {
	t.Parallel()
	tbl := table.New()
	a := entry.New("/dev/sda1", "/", "ext4", "", "")
	b := entry.New("/dev/sda2", "/home", "ext4", "", "")
	dupA := entry.New("/dev/sda1", "/", "ext4", "", "")
	c := entry.New("/dev/sda3", "/var", "xfs", "", "")
	for _, e := range []*entry.Entry{a, b, dupA, c} {
		tbl.Add(e)
	}

	dropped := tbl.UniqFS(func(x, y *entry.Entry) bool {
		return x.Source == y.Source && x.Target == y.Target
	})

	assert.Equal(t, 1, dropped)
	assert.Equal(t, []*entry.Entry{a, b, c}, tbl.Entries())
	assert.True(t, tbl.Changed)
}

func TestRemoveMarksChanged(t *testing.T) {
	t.Parallel()
	tbl := table.New()
	e := entry.New("/dev/sda1", "/", "ext4", "", "")
	tbl.Add(e)
	assert.False(t, tbl.Changed)
	assert.True(t, tbl.Remove(e))
	assert.Equal(t, 0, tbl.NumEntries())
	assert.True(t, tbl.Changed)
	assert.False(t, tbl.Remove(e), "a second remove of the same entry should report not-found")
}
