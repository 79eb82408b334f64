// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package valuelist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

func TestSetStringDeduplicatesPerChainAndName(t *testing.T) {
	t.Parallel()
	var l valuelist.List
	require.NoError(t, l.SetString(0, "TYPE", "ext2"))
	require.NoError(t, l.SetString(0, "TYPE", "ext4"))
	require.NoError(t, l.SetString(1, "TYPE", "dos"))

	assert.Equal(t, 2, l.Len(), "same (chain, name) must overwrite, different chain must not")

	v, ok := l.Get(0, "TYPE")
	require.True(t, ok)
	assert.Equal(t, "ext4", v.String())

	v, ok = l.Get(1, "TYPE")
	require.True(t, ok)
	assert.Equal(t, "dos", v.String())
}

func TestStringAndBinaryLengthConventions(t *testing.T) {
	t.Parallel()
	var l valuelist.List
	require.NoError(t, l.SetString(0, "LABEL", "root"))
	require.NoError(t, l.SetBinary(0, "SBMAGIC", []byte{0x53, 0xEF}))

	s, ok := l.Get(0, "LABEL")
	require.True(t, ok)
	assert.Equal(t, 5, s.Len, "string lengths include the terminator")
	assert.Equal(t, byte(0), s.Data[len(s.Data)-1])

	b, ok := l.Get(0, "SBMAGIC")
	require.True(t, ok)
	assert.Equal(t, 2, b.Len, "binary lengths do not include the terminator")
	assert.Equal(t, []byte{0x53, 0xEF}, b.Bytes())
	assert.Equal(t, byte(0), b.Data[len(b.Data)-1], "binary data still stores a trailing zero")
}

func TestDropChainPreservesOrderOfSurvivors(t *testing.T) {
	t.Parallel()
	var l valuelist.List
	require.NoError(t, l.SetString(0, "TYPE", "LVM2_member"))
	require.NoError(t, l.SetString(1, "PTTYPE", "dos"))
	require.NoError(t, l.SetString(0, "UUID", "abc"))
	require.NoError(t, l.SetString(1, "PTMAGIC_OFFSET", "510"))

	l.DropChain(0)

	assert.Equal(t, 2, l.Len())
	_, ok := l.Get(0, "TYPE")
	assert.False(t, ok)
	names := make([]string, 0, 2)
	for _, v := range l.All() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"PTTYPE", "PTMAGIC_OFFSET"}, names)

	v, ok := l.Get(1, "PTTYPE")
	require.True(t, ok, "the index must survive a reindex")
	assert.Equal(t, "dos", v.String())
}

func TestResetEmptiesEverything(t *testing.T) {
	t.Parallel()
	var l valuelist.List
	require.NoError(t, l.SetString(0, "TYPE", "xfs"))
	l.Reset()
	assert.Equal(t, 0, l.Len())
	_, ok := l.GetAny("TYPE")
	assert.False(t, ok)
}

func TestEmptyNameRejected(t *testing.T) {
	t.Parallel()
	var l valuelist.List
	assert.Error(t, l.SetString(0, "", "x"))
	assert.Equal(t, 0, l.Len())
}
