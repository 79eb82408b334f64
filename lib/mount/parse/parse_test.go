// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package parse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/mount/parse"
	"github.com/lukeshu/blkid-go/lib/mount/table"
)

func TestUnescapeOctal(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "my vol", parse.UnescapeOctal(`my\040vol`))
	assert.Equal(t, `back\slash`, parse.UnescapeOctal(`back\134slash`))
	assert.Equal(t, "/dev/sda1", parse.UnescapeOctal("/dev/sda1"))
}

func TestEscapeOctalRoundTrips(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"my vol", `back\slash`, "/dev/sda1", "a\tb"} {
		assert.Equal(t, s, parse.UnescapeOctal(parse.EscapeOctal(s)))
	}
}

func TestFstabParsesSixColumns(t *testing.T) {
	t.Parallel()
	const data = `
# a leading comment
/dev/sda1  /            ext4    rw,relatime  0  1
LABEL=swap none         swap    sw           0  0
my\040nas:/export /mnt/nas nfs4 ro           0  0
none       /tmp         tmpfs   size=1g      0  0
`
	tbl := table.New()
	require.NoError(t, parse.Fstab(strings.NewReader(data), tbl))
	require.Equal(t, 4, tbl.NumEntries())

	ents := tbl.Entries()
	assert.Equal(t, "/dev/sda1", ents[0].Source)
	assert.Equal(t, "/", ents[0].Target)
	assert.Equal(t, "ext4", ents[0].Type)
	assert.Equal(t, "rw,relatime", ents[0].Options())
	assert.Equal(t, 1, ents[0].Passno)

	assert.True(t, ents[1].HasTag)
	assert.Equal(t, "swap", ents[1].Tag.Value)
	assert.Equal(t, "LABEL=swap", ents[1].Source)

	assert.Equal(t, "my nas:/export", ents[2].Source)

	assert.Equal(t, "", ents[3].Source, "a \"none\" source means no device")
	assert.Equal(t, "/tmp", ents[3].Target)
}

func TestFstabReportsMalformedLines(t *testing.T) {
	t.Parallel()
	var errs []string
	tbl := table.New()
	tbl.ErrFn = func(lineno int, line string, err error) {
		errs = append(errs, line)
	}
	require.NoError(t, parse.Fstab(strings.NewReader("only two fields\n/dev/sda1 / ext4 rw 0 1\n"), tbl))
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, tbl.NumEntries())
}

func TestMountinfoParsesKernelFormat(t *testing.T) {
	t.Parallel()
	const data = `23 17 8:21 / /home rw,relatime shared:1 - ext4 /dev/sda5 rw,data=ordered
24 23 8:22 /sub /home/alice rw master:2 shared:3 - btrfs /dev/sda6 rw,subvolid=257,subvol=/sub
`
	tbl := table.New()
	require.NoError(t, parse.Mountinfo(strings.NewReader(data), tbl))
	require.Equal(t, 2, tbl.NumEntries())

	ents := tbl.Entries()
	assert.Equal(t, 23, ents[0].MountID)
	assert.Equal(t, 17, ents[0].ParentID)
	assert.Equal(t, uint32(8), ents[0].DevMajor)
	assert.Equal(t, uint32(21), ents[0].DevMinor)
	assert.Equal(t, "/", ents[0].Root)
	assert.Equal(t, "/home", ents[0].Target)
	assert.Equal(t, "ext4", ents[0].Type)
	assert.Equal(t, "/dev/sda5", ents[0].Source)
	assert.Equal(t, "shared:1", ents[0].OptionalFields)
	assert.True(t, ents[0].HasOption("data=ordered"))

	assert.Equal(t, "/sub", ents[1].Root)
	assert.Equal(t, "master:2 shared:3", ents[1].OptionalFields)
	v, ok := ents[1].OptionValue("subvol")
	require.True(t, ok)
	assert.Equal(t, "/sub", v)
}

func TestMountinfoReportsMissingDashSeparator(t *testing.T) {
	t.Parallel()
	var errCount int
	tbl := table.New()
	tbl.ErrFn = func(lineno int, line string, err error) { errCount++ }
	require.NoError(t, parse.Mountinfo(strings.NewReader("23 17 8:21 / /home rw no-dash-here ext4 /dev/sda5 rw\n"), tbl))
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 0, tbl.NumEntries())
}
