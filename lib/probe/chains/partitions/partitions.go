// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package partitions is the concrete partition-table chain: dos
// (MBR) and gpt.  As with lib/probe/chains/superblocks, this is a
// deliberately small catalogue; the recognition engine does not care
// how many descriptors a chain carries.
package partitions

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/idinfo"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// ID is this chain's fixed array position; partitions is probed after
// superblocks, matching libblkid's BLKID_CHAIN_PARTS ordering -- the
// wiper-policy interaction depends on partitions
// running after superblocks so an LVM wiper area is already set.
const ID valuelist.ChainID = 1

// Entry describes one partition-table entry surfaced through
// Prober.GetPartitions, richer than the flat PART_ENTRY_* value-list
// tags alone.
type Entry struct {
	Number int
	Name   string // GPT partition name; empty for dos
	UUID   string // GPT unique partition GUID; empty for dos
	Type   string // GPT type GUID, or dos partition-type byte as hex
	Start  int64  // in logical sectors
	Size   int64  // in logical sectors
	Flags  uint64
}

// TableResult is the chain-private data a successful match stashes
// for Prober.GetPartitions to read back out.
type TableResult struct {
	PTType  string
	Entries []Entry
}

type entry struct {
	desc    *idinfo.Descriptor
	extract func(ctx *chain.Context, match idinfo.MatchResult) (*TableResult, error)
}

// Driver implements chain.Driver for partition tables.
type Driver struct {
	entries []entry
}

func New() *Driver {
	d := &Driver{}
	d.entries = []entry{
		{desc: dosDescriptor(), extract: extractDOS},
		{desc: gptDescriptor(), extract: extractGPT},
	}
	return d
}

var _ chain.Driver = (*Driver)(nil)

func (d *Driver) ID() valuelist.ChainID   { return ID }
func (d *Driver) Name() string            { return "partitions" }
func (d *Driver) SupportsFilter() bool    { return true }
func (d *Driver) DefaultEnabled() bool    { return false } // EnablePartitions opts in, per canonical-snapd's evidenced API
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
		if ctx.UseWiper(match.EffectiveOff-match.EffectiveOff%512, 512) {
			// fall through: the earlier (e.g. LVM) chain's
			// values were discarded because this match
			// falls inside its wipe area; this match wins.
		}
		tr, err := e.extract(ctx, match)
		if err != nil {
			if err == idinfo.ErrNoMatch {
				continue
			}
			return false, err
		}
		state.Private = tr
		_ = ctx.Values.SetString(ctx.ChainID, "PTTYPE", tr.PTType)
		if len(match.Magic.Bytes) > 0 {
			_ = ctx.Values.SetBinary(ctx.ChainID, "PTMAGIC", match.Magic.Bytes)
			_ = ctx.Values.SetStringf(ctx.ChainID, "PTMAGIC_OFFSET", "%d", match.EffectiveOff)
		}
		if len(tr.Entries) > 0 {
			first := tr.Entries[0]
			_ = ctx.Values.SetStringf(ctx.ChainID, "PART_ENTRY_NUMBER", "%d", first.Number)
			_ = ctx.Values.SetStringf(ctx.ChainID, "PART_ENTRY_OFFSET", "%d", first.Start)
			_ = ctx.Values.SetStringf(ctx.ChainID, "PART_ENTRY_SIZE", "%d", first.Size)
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

// --- dos / MBR ---

func dosDescriptor() *idinfo.Descriptor {
	return &idinfo.Descriptor{
		Name:    "dos",
		Usage:   idinfo.UsagePartitionTable,
		MinSize: 512,
		Magics: []idinfo.Magic{
			{Bytes: []byte{0x55, 0xAA}, KBOff: 0, SBOff: 510},
		},
	}
}

const dosEntrySize = 16
const dosTableOff = 446

func extractDOS(ctx *chain.Context, _ idinfo.MatchResult) (*TableResult, error) {
	buf, err := ctx.Cache.Get(0, 512)
	if err != nil {
		return nil, err
	}
	tr := &TableResult{PTType: "dos"}
	for i := 0; i < 4; i++ {
		rec := buf[dosTableOff+i*dosEntrySize : dosTableOff+(i+1)*dosEntrySize]
		partType := rec[4]
		if partType == 0 {
			continue
		}
		startLBA := binary.LittleEndian.Uint32(rec[8:12])
		numSectors := binary.LittleEndian.Uint32(rec[12:16])
		tr.Entries = append(tr.Entries, Entry{
			Number: i + 1,
			Type:   fmt.Sprintf("%#02x", partType),
			Start:  int64(startLBA),
			Size:   int64(numSectors),
		})
	}
	return tr, nil
}

// --- gpt ---

func gptDescriptor() *idinfo.Descriptor {
	return &idinfo.Descriptor{
		Name:    "gpt",
		Usage:   idinfo.UsagePartitionTable,
		MinSize: 2 * 512,
		Magics: []idinfo.Magic{
			{Bytes: []byte("EFI PART"), KBOff: 0, SBOff: 512},
		},
	}
}

const gptHeaderLBASize = 512

func extractGPT(ctx *chain.Context, _ idinfo.MatchResult) (*TableResult, error) {
	hdr, err := ctx.Cache.Get(diskio.Addr(gptHeaderLBASize), gptHeaderLBASize)
	if err != nil {
		return nil, err
	}
	partEntryLBA := binary.LittleEndian.Uint64(hdr[72:80])
	numEntries := binary.LittleEndian.Uint32(hdr[80:84])
	entrySize := binary.LittleEndian.Uint32(hdr[84:88])
	if entrySize == 0 || numEntries == 0 || numEntries > 4096 {
		return &TableResult{PTType: "gpt"}, nil
	}

	tr := &TableResult{PTType: "gpt"}
	tableOff := diskio.Addr(partEntryLBA) * gptHeaderLBASize
	for i := uint32(0); i < numEntries; i++ {
		off := tableOff + diskio.Addr(i)*diskio.Addr(entrySize)
		rec, err := ctx.Cache.Get(off, int(entrySize))
		if err != nil {
			break
		}
		typeGUID := rec[0:16]
		if allZero(typeGUID) {
			continue
		}
		uniqueGUID := rec[16:32]
		firstLBA := binary.LittleEndian.Uint64(rec[32:40])
		lastLBA := binary.LittleEndian.Uint64(rec[40:48])
		attrs := binary.LittleEndian.Uint64(rec[48:56])
		name := utf16leToString(rec[56:minInt(len(rec), 56+72)])
		tr.Entries = append(tr.Entries, Entry{
			Number: int(i) + 1,
			Name:   name,
			UUID:   formatGUID(uniqueGUID),
			Type:   formatGUID(typeGUID),
			Start:  int64(firstLBA),
			Size:   int64(lastLBA-firstLBA) + 1,
			Flags:  attrs,
		})
	}
	return tr, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// formatGUID renders a GPT mixed-endian GUID field (bytes[0:4],
// bytes[4:6], bytes[6:8] little-endian; bytes[8:16] verbatim) in the
// canonical 8-4-4-4-12 dashed hex form.
func formatGUID(b []byte) string {
	if len(b) < 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15])
}

func utf16leToString(b []byte) string {
	var out []byte
	for i := 0; i+1 < len(b); i += 2 {
		lo, hi := b[i], b[i+1]
		if lo == 0 && hi == 0 {
			break
		}
		if hi == 0 && lo < 0x80 {
			out = append(out, lo)
		} else {
			out = append(out, '?')
		}
	}
	return string(out)
}
