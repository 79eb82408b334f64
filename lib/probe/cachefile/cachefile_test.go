// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package cachefile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/probe/cachefile"
	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
)

func TestWriteParseRoundTrip(t *testing.T) {
	t.Parallel()
	entries := []*cachefile.Entry{
		{
			Device:   "/dev/sda1",
			Tags:     []tagspec.Tag{{Name: "TYPE", Value: "ext4"}, {Name: "UUID", Value: "abc-123"}},
			DevMajor: 8,
			DevMinor: 1,
			Time:     1700000000.5,
			Priority: 0,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, cachefile.Write(&buf, entries))

	got, err := cachefile.Parse(&buf, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/dev/sda1", got[0].Device)
	assert.Equal(t, uint32(8), got[0].DevMajor)
	assert.Equal(t, uint32(1), got[0].DevMinor)
	assert.Equal(t, 1700000000.5, got[0].Time)
	typ, ok := got[0].Get("TYPE")
	require.True(t, ok)
	assert.Equal(t, "ext4", typ)
}

func TestParseSkipsMalformedLineButContinues(t *testing.T) {
	t.Parallel()
	input := "/dev/sda1 TYPE=ext4 DEVNO=\"08:01\" TIME=\"1.0\" PRI=\"0\"\n" +
		"/dev/sda2 not-a-tag DEVNO=\"08:02\" TIME=\"2.0\" PRI=\"0\"\n"

	var errs []string
	got, err := cachefile.Parse(bytes.NewBufferString(input), func(_ int, line string, _ error) {
		errs = append(errs, line)
	})
	require.NoError(t, err)
	require.Len(t, got, 2, "a parse error on one field is recoverable; the line is still kept")
	assert.Len(t, errs, 1)
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "blkid.tab")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	entries := []*cachefile.Entry{{Device: "/dev/sda1", DevMajor: 8, DevMinor: 1, Time: 1.0}}
	require.NoError(t, cachefile.WriteFile(path, entries))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := cachefile.Parse(f, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/dev/sda1", got[0].Device)
}

func TestGCDropsMissingDevices(t *testing.T) {
	t.Parallel()
	entries := []*cachefile.Entry{
		{Device: "/dev/exists"},
		{Device: "/dev/missing"},
	}
	kept, changed := cachefile.GC(entries, func(device string) bool {
		return device == "/dev/exists"
	})
	assert.True(t, changed)
	require.Len(t, kept, 1)
	assert.Equal(t, "/dev/exists", kept[0].Device)
}
