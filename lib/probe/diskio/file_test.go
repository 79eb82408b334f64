// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/probe/diskio"
)

func TestOSFileRegular(t *testing.T) {
	t.Parallel()
	tmp, err := os.CreateTemp(t.TempDir(), "diskio-*")
	require.NoError(t, err)
	_, err = tmp.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	f, err := diskio.OpenFile(tmp.Name(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, diskio.KindRegular, f.Kind())
	assert.True(t, f.Mappable())
	assert.Equal(t, diskio.Addr(11), f.Size())

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	n, err = f.WriteAt([]byte("WORLD"), 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf2 := make([]byte, 11)
	_, err = f.ReadAt(buf2, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello WORLD", string(buf2))
}

func TestOSFileName(t *testing.T) {
	t.Parallel()
	tmp, err := os.CreateTemp(t.TempDir(), "diskio-*")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	f, err := diskio.OpenFile(tmp.Name(), os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, tmp.Name(), f.Name())
}
