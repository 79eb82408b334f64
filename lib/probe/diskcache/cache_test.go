// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskcache_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/probe/diskcache"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
)

func makeFile(t *testing.T, size int) *diskio.OSFile {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "diskcache-*")
	require.NoError(t, err)
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	_, err = tmp.Write(buf)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	f, err := diskio.OpenFile(tmp.Name(), os.O_RDONLY, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestCacheGetWholeWindow(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 4096)
	c := diskcache.New(f, 0, diskio.Addr(f.Size()), nil)

	got, err := c.Get(10, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 11, 12, 13, 14}, got)
}

func TestCacheGetRepeatedHitsSameRange(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 4096)
	c := diskcache.New(f, 0, diskio.Addr(f.Size()), nil)

	first, err := c.Get(100, 8)
	require.NoError(t, err)
	second, err := c.Get(102, 4)
	require.NoError(t, err)
	assert.Equal(t, first[2:6], second)
}

func TestCacheGetRejectsEscapingWindow(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 4096)
	c := diskcache.New(f, 0, 100, nil)

	_, err := c.Get(95, 10)
	assert.Error(t, err)
}

func TestCacheGetRejectsZeroLength(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 4096)
	c := diskcache.New(f, 0, diskio.Addr(f.Size()), nil)

	_, err := c.Get(0, 0)
	assert.Error(t, err)
}

func TestCacheCloneForwardsToParent(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 8192)
	parent := diskcache.New(f, 0, diskio.Addr(f.Size()), nil)
	clone := diskcache.New(f, 1000, 100, parent)

	got, err := clone.Get(0, 10)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, []byte{232, 233, 234, 235, 236, 237, 238, 239, 240, 241}))
}

func TestCacheReset(t *testing.T) {
	t.Parallel()
	f := makeFile(t, 4096)
	c := diskcache.New(f, 0, diskio.Addr(f.Size()), nil)

	_, err := c.Get(0, 16)
	require.NoError(t, err)
	c.Reset()
	got, err := c.Get(0, 16)
	require.NoError(t, err)
	assert.Len(t, got, 16)
}
