// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package idinfo defines the signature-descriptor record and the
// magic-pattern matcher used by every chain in lib/probe/chains.
package idinfo

import (
	"github.com/lukeshu/blkid-go/lib/probe/diskcache"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// Usage classifies what a descriptor recognizes, mirroring the
// historical BLKID_USAGE_* flag set.
type Usage int

const (
	UsageFilesystem Usage = 1 << iota
	UsageRAID
	UsageCrypto
	UsagePartitionTable
	UsageOther
)

// Magic is one fixed byte pattern a descriptor looks for. The
// effective byte offset within the device is (kboff<<10) + sboff; the
// engine reads 1024 bytes at (kboff+sboff>>10)<<10 and compares Len
// bytes at sboff&0x3FF.
type Magic struct {
	Bytes []byte
	Len   int // defaults to len(Bytes) when 0
	KBOff int64
	SBOff int64
}

func (m Magic) length() int {
	if m.Len != 0 {
		return m.Len
	}
	return len(m.Bytes)
}

// slotOff is the 1-KiB-aligned window start that contains this magic.
func (m Magic) slotOff() diskio.Addr {
	return diskio.Addr((m.KBOff + (m.SBOff >> 10)) << 10)
}

// effectiveOff is the exact device byte offset the magic bytes start at.
func (m Magic) effectiveOff() diskio.Addr {
	return m.slotOff() + diskio.Addr(m.SBOff&0x3FF)
}

// ProbeFunc is a descriptor's optional probe callback. It sets values
// on vals and may return ErrNoMatch to indicate that, despite the
// magic matching, this is not really an instance of the format (e.g.
// a checksum failure). MatchMagics does not call it, and the chains
// in lib/probe/chains do their post-match work in their own extract
// functions instead.
type ProbeFunc func(cache *diskcache.Cache, vals *valuelist.List, chain valuelist.ChainID) error

// ErrNoMatch is returned by a ProbeFunc to reject a magic match.
var ErrNoMatch = errNoMatch{}

type errNoMatch struct{}

func (errNoMatch) Error() string { return "idinfo: descriptor declined match" }

// Descriptor is one recognizer within a chain.
type Descriptor struct {
	Name     string
	Usage    Usage
	Magics   []Magic
	Tolerant bool // may legitimately coexist with another match on the device
	Probe    ProbeFunc
	MinSize  diskio.Addr // device must be at least this large to be considered
}

// MatchResult describes a magic that matched, including the fields
// the wipe primitive needs.
type MatchResult struct {
	Magic        Magic
	EffectiveOff diskio.Addr
}

// MatchMagics tries a descriptor's patterns: for each magic in declaration
// order, read its 1-KiB slot through cache and byte-compare. Returns
// (match, true, nil) on the first hit, (zero, false, nil) when magics
// are declared but none match, and (zero, true, nil) when the
// descriptor declares no magics at all (the caller's ProbeFunc must do
// the work).
func MatchMagics(cache *diskcache.Cache, d *Descriptor) (MatchResult, bool, error) {
	if len(d.Magics) == 0 {
		return MatchResult{}, true, nil
	}
	for _, m := range d.Magics {
		slot, err := cache.Get(m.slotOff(), 1024)
		if err != nil {
			continue // out-of-range or I/O error on this slot: try the next magic
		}
		off := int(m.SBOff & 0x3FF)
		length := m.length()
		if off+length > len(slot) {
			continue
		}
		if bytesEqual(slot[off:off+length], m.Bytes[:length]) {
			return MatchResult{Magic: m, EffectiveOff: m.effectiveOff()}, true, nil
		}
	}
	return MatchResult{}, false, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
