// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tagspec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
)

func TestParse(t *testing.T) {
	t.Parallel()
	type testcase struct {
		spec    string
		want    tagspec.Tag
		wantErr bool
	}
	testcases := map[string]testcase{
		"plain":            {spec: "LABEL=rootfs", want: tagspec.Tag{Name: "LABEL", Value: "rootfs"}},
		"uuid":             {spec: "UUID=1234-ABCD", want: tagspec.Tag{Name: "UUID", Value: "1234-ABCD"}},
		"underscore-digit": {spec: "PART_ENTRY_1=x", want: tagspec.Tag{Name: "PART_ENTRY_1", Value: "x"}},
		"quoted":           {spec: `LABEL="my disk"`, want: tagspec.Tag{Name: "LABEL", Value: "my disk"}},
		"quoted-escape":    {spec: `LABEL="a\"b"`, want: tagspec.Tag{Name: "LABEL", Value: `a"b`}},
		"empty-value":      {spec: "LABEL=", want: tagspec.Tag{Name: "LABEL", Value: ""}},
		"lowercase":        {spec: "label=x", wantErr: true},
		"leading-digit":    {spec: "1LABEL=x", wantErr: true},
		"no-equals":        {spec: "/dev/sda1", wantErr: true},
		"empty-name":       {spec: "=x", wantErr: true},
		"dangling-escape":  {spec: `LABEL="x\"`, wantErr: true},
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := tagspec.Parse(tc.spec)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()
	for _, tag := range []tagspec.Tag{
		{Name: "LABEL", Value: "plain"},
		{Name: "LABEL", Value: "with space"},
		{Name: "LABEL", Value: `quo"te`},
		{Name: "UUID", Value: ""},
	} {
		back, err := tagspec.Parse(tag.String())
		require.NoError(t, err, "spec %q", tag.String())
		assert.Equal(t, tag, back)
	}
}

func TestIsTagSpec(t *testing.T) {
	t.Parallel()
	assert.True(t, tagspec.IsTagSpec("LABEL=x"))
	assert.False(t, tagspec.IsTagSpec("/dev/sda1"))
}
