// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package superblocks is the concrete filesystem-superblock chain.
// The catalogue is deliberately small -- ext4 (ext2/ext3 along the
// way), xfs, swap, and LVM2 physical-volume member detection; the
// recognition engine is indifferent to how many descriptors a chain
// carries, so growing it is purely additive data work.
package superblocks

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/idinfo"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
	"github.com/lukeshu/blkid-go/lib/util"
)

// ID is this chain's fixed array position; a chain's integer ID must
// equal its index in the chain array the prober drives.  Superblocks
// is probed first, matching libblkid's BLKID_CHAIN_SUBLKS ordering.
const ID valuelist.ChainID = 0

type entry struct {
	desc    *idinfo.Descriptor
	extract func(ctx *chain.Context, match idinfo.MatchResult) error
}

// Driver implements chain.Driver for filesystem superblocks.
type Driver struct {
	entries []entry
}

// New constructs the superblocks chain with its built-in descriptor
// catalogue.
func New() *Driver {
	d := &Driver{}
	d.entries = []entry{
		{desc: ext4Descriptor(), extract: extractExt},
		{desc: xfsDescriptor(), extract: extractXFS},
		{desc: swapDescriptor(), extract: extractSwap},
		{desc: lvm2Descriptor(), extract: extractLVM2},
	}
	return d
}

var _ chain.Driver = (*Driver)(nil)

func (d *Driver) ID() valuelist.ChainID   { return ID }
func (d *Driver) Name() string            { return "superblocks" }
func (d *Driver) SupportsFilter() bool    { return true }
func (d *Driver) DefaultEnabled() bool    { return true }
func (d *Driver) FreeData(s *chain.State) { s.Private = nil }

func (d *Driver) Descriptors() []*idinfo.Descriptor {
	ret := make([]*idinfo.Descriptor, len(d.entries))
	for i, e := range d.entries {
		ret[i] = e.desc
	}
	return ret
}

func (d *Driver) Probe(ctx *chain.Context, state *chain.State) (bool, error) {
	for state.Idx+1 < len(d.entries) {
		state.Idx++
		if state.Skipped(state.Idx) {
			continue
		}
		e := d.entries[state.Idx]
		if ctx.DeviceSize < e.desc.MinSize {
			continue
		}
		match, ok, err := idinfo.MatchMagics(ctx.Cache, e.desc)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		setCommon(ctx, e.desc, match)
		if e.extract != nil {
			if err := e.extract(ctx, match); err != nil {
				if err == idinfo.ErrNoMatch {
					continue
				}
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

func (d *Driver) SafeProbe(ctx *chain.Context, state *chain.State) (bool, error) {
	matches, intolerant := 0, 0
	state.Idx = -1
	for {
		ok, err := d.Probe(ctx, state)
		if err != nil {
			state.Idx = -1
			return false, err
		}
		if !ok {
			break
		}
		matches++
		if !d.entries[state.Idx].desc.Tolerant {
			intolerant++
		}
	}
	if intolerant >= 2 {
		ctx.Values.DropChain(ctx.ChainID)
		state.Idx = -1
		return false, chain.ErrAmbivalent
	}
	if matches == 0 {
		state.Idx = -1
		return false, nil
	}
	return true, nil
}

func setCommon(ctx *chain.Context, d *idinfo.Descriptor, match idinfo.MatchResult) {
	_ = ctx.Values.SetString(ctx.ChainID, "TYPE", d.Name)
	_ = ctx.Values.SetString(ctx.ChainID, "USAGE", usageString(d.Usage))
	if len(match.Magic.Bytes) > 0 {
		_ = ctx.Values.SetBinary(ctx.ChainID, "SBMAGIC", match.Magic.Bytes)
		_ = ctx.Values.SetStringf(ctx.ChainID, "SBMAGIC_OFFSET", "%d", match.EffectiveOff)
	}
}

func usageString(u idinfo.Usage) string {
	switch {
	case u&idinfo.UsageFilesystem != 0:
		return "filesystem"
	case u&idinfo.UsageRAID != 0:
		return "raid"
	case u&idinfo.UsageCrypto != 0:
		return "crypto"
	default:
		return "other"
	}
}

// trimNul extracts the printable prefix of an on-device string
// field.  Vendor tools write labels in whatever encoding they please;
// NFC-normalizing here means two labels that render identically also
// compare equal as LABEL= values.
func trimNul(b []byte) string {
	if i := indexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return norm.NFC.String(strings.TrimSpace(string(b)))
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// --- ext2/ext3/ext4 ---

const extSuperblockOff = diskio.Addr(1024)

func ext4Descriptor() *idinfo.Descriptor {
	return &idinfo.Descriptor{
		Name:    "ext4", // refined to ext2/ext3 in extractExt
		Usage:   idinfo.UsageFilesystem,
		MinSize: extSuperblockOff + 1024,
		Magics: []idinfo.Magic{
			{Bytes: []byte{0x53, 0xEF}, KBOff: 1, SBOff: 56}, // s_magic @ 1024+56
		},
	}
}

func extractExt(ctx *chain.Context, _ idinfo.MatchResult) error {
	buf, err := ctx.Cache.Get(extSuperblockOff, 1024)
	if err != nil {
		return err
	}
	featureCompat := binary.LittleEndian.Uint32(buf[0x5C:])
	featureIncompat := binary.LittleEndian.Uint32(buf[0x60:])
	uuid := buf[0x68:0x78]
	label := buf[0x78:0x88]

	name := "ext2"
	switch {
	case featureIncompat&0x40 != 0 || featureIncompat&0x80 != 0: // EXTENTS, 64BIT
		name = "ext4"
	case featureCompat&0x4 != 0: // HAS_JOURNAL
		name = "ext3"
	}
	var u util.UUID
	copy(u[:], uuid)
	_ = ctx.Values.SetString(ctx.ChainID, "TYPE", name)
	if !u.IsZero() {
		_ = ctx.Values.SetString(ctx.ChainID, "UUID", u.String())
	}
	if lbl := trimNul(label); lbl != "" {
		_ = ctx.Values.SetString(ctx.ChainID, "LABEL", lbl)
	}
	return nil
}

// --- xfs ---

func xfsDescriptor() *idinfo.Descriptor {
	return &idinfo.Descriptor{
		Name:    "xfs",
		Usage:   idinfo.UsageFilesystem,
		MinSize: 512,
		Magics: []idinfo.Magic{
			{Bytes: []byte("XFSB"), KBOff: 0, SBOff: 0},
		},
	}
}

func extractXFS(ctx *chain.Context, _ idinfo.MatchResult) error {
	buf, err := ctx.Cache.Get(0, 512)
	if err != nil {
		return err
	}
	uuid := buf[32:48]
	label := buf[108:120]
	var u util.UUID
	copy(u[:], uuid)
	if !u.IsZero() {
		_ = ctx.Values.SetString(ctx.ChainID, "UUID", u.String())
	}
	if lbl := trimNul(label); lbl != "" {
		_ = ctx.Values.SetString(ctx.ChainID, "LABEL", lbl)
	}
	return nil
}

// --- swap ---

const swapPageSize = diskio.Addr(4096)

func swapDescriptor() *idinfo.Descriptor {
	magicOff := swapPageSize - 10
	return &idinfo.Descriptor{
		Name:    "swap",
		Usage:   idinfo.UsageOther,
		MinSize: swapPageSize,
		Magics: []idinfo.Magic{
			{Bytes: []byte("SWAPSPACE2"), KBOff: int64(magicOff / 1024), SBOff: int64(magicOff % 1024)},
		},
	}
}

func extractSwap(ctx *chain.Context, _ idinfo.MatchResult) error {
	buf, err := ctx.Cache.Get(1036, 32)
	if err != nil {
		return err
	}
	uuid := buf[0:16]
	label := buf[16:32]
	var u util.UUID
	copy(u[:], uuid)
	if !u.IsZero() {
		_ = ctx.Values.SetString(ctx.ChainID, "UUID", u.String())
	}
	if lbl := trimNul(label); lbl != "" {
		_ = ctx.Values.SetString(ctx.ChainID, "LABEL", lbl)
	}
	return nil
}

// --- LVM2 physical volume ---

const lvm2LabelOff = diskio.Addr(512 + 0x18) // 536: label header's "type" field

func lvm2Descriptor() *idinfo.Descriptor {
	return &idinfo.Descriptor{
		Name:    "LVM2_member",
		Usage:   idinfo.UsageRAID,
		MinSize: 8192,
		Magics: []idinfo.Magic{
			{Bytes: []byte("LVM2 001"), KBOff: 0, SBOff: int64(lvm2LabelOff)},
		},
	}
}

func extractLVM2(ctx *chain.Context, _ idinfo.MatchResult) error {
	// LVM2 zeroes the leading 8 KiB of the device as part of its
	// on-disk layout convention; a partition table found inside
	// that region later is spurious.
	ctx.RegisterWiper(0, 8192)
	// pv_header follows the 32-byte label header in the label
	// sector; its first field is the 32-byte PV UUID.
	buf, err := ctx.Cache.Get(512+32, 32)
	if err == nil {
		if uuid := trimNul(buf); uuid != "" {
			_ = ctx.Values.SetString(ctx.ChainID, "UUID", uuid)
		}
	}
	return nil
}
