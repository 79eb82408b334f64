// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package chain defines the chain-driver contract, the per-chain
// state record, and the filter semantics that every concrete chain in
// lib/probe/chains implements and that the iteration driver in
// lib/probe/prober drives.
package chain

import (
	"errors"

	"github.com/lukeshu/blkid-go/lib/probe/diskcache"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/idinfo"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// ErrAmbivalent is returned by SafeProbe when two or more intolerant
// descriptors match.
var ErrAmbivalent = errors.New("chain: ambivalent probe result")

// WipeArea is the wiper-policy state shared across chains within one
// prober: a chain that detects a format known to zero a leading
// region of the device registers the region here so a later chain
// can discard a match that falls entirely inside it.
type WipeArea struct {
	Set   bool
	Off   diskio.Addr
	Size  diskio.Addr
	Chain valuelist.ChainID
}

// Contains reports whether [off, off+size) falls wholly within the
// registered wipe area.
func (w *WipeArea) Contains(off, size diskio.Addr) bool {
	return w.Set && off >= w.Off && off+size <= w.Off+w.Size
}

// Reset clears the wipe area, as required whenever probing starts or
// ends, or a chain index advances or steps back to -1.
func (w *WipeArea) Reset() { *w = WipeArea{} }

// Context is everything a chain driver needs to probe one device; it
// is constructed by lib/probe/prober and passed into every Driver
// method, which keeps this package free of a dependency on prober
// (avoiding an import cycle, since prober depends on chain).
type Context struct {
	Cache              *diskcache.Cache
	Values             *valuelist.List
	ChainID            valuelist.ChainID
	DeviceSize         diskio.Addr
	Wipe               *WipeArea
	LogicalSectorSize  int
	PhysicalSectorSize int
}

// UseWiper resolves a collision against a registered wipe area: if
// off/size falls inside a previously registered wipe area produced by
// a different chain, the earlier chain's values are discarded and the
// wipe area is reset, and true is returned (meaning "the caller's
// match is the real one; forget the wiper's chain"). Otherwise false.
func (c *Context) UseWiper(off, size diskio.Addr) bool {
	if !c.Wipe.Contains(off, size) || c.Wipe.Chain == c.ChainID {
		return false
	}
	c.Values.DropChain(c.Wipe.Chain)
	c.Wipe.Reset()
	return true
}

// RegisterWiper records that the current chain's match zeroes
// [off,off+size) of the device.
func (c *Context) RegisterWiper(off, size diskio.Addr) {
	c.Wipe.Set = true
	c.Wipe.Off = off
	c.Wipe.Size = size
	c.Wipe.Chain = c.ChainID
}

// Driver is the contract every chain implements.
type Driver interface {
	// ID is this chain's fixed position in the prober's chain
	// array; a chain's integer ID MUST equal its array index, and
	// the iteration driver relies on this mechanically.
	ID() valuelist.ChainID
	Name() string
	Descriptors() []*idinfo.Descriptor
	SupportsFilter() bool
	DefaultEnabled() bool

	// Probe advances state.Idx one descriptor forward, attempting
	// matches; on success it sets values tagged with ctx.ChainID
	// and returns (true, nil). Returns (false, nil) when no
	// descriptor matches before the end of the array. Returns
	// (false, err) on unrecoverable I/O error.
	Probe(ctx *Context, state *State) (bool, error)

	// SafeProbe examines every descriptor; returns (true, nil) if
	// exactly one matched (or additional matches are all
	// tolerant), (false, nil) if nothing matched, and
	// (false, ErrAmbivalent) if two or more intolerant
	// descriptors matched.
	SafeProbe(ctx *Context, state *State) (bool, error)

	// FreeData releases any chain-scoped allocations held in
	// state.Private.
	FreeData(state *State)
}

// State is the per-chain record a Prober keeps.
type State struct {
	Driver     Driver
	Enabled    bool
	Idx        int // -1 means "before first"; invariant: -1 <= Idx < nidinfos
	Filter     []bool
	BinaryMode bool
	Private    any
}

// NewState creates chain state with the chain's own defaults.
func NewState(d Driver) *State {
	return &State{
		Driver:  d,
		Enabled: d.DefaultEnabled(),
		Idx:     -1,
	}
}

// Reset rewinds the chain to its pre-start position, which the
// iteration driver does whenever a filter is touched or a fresh probe
// begins: touching a filter restarts probing.
func (s *State) Reset() { s.Idx = -1 }

// FilterFlag selects whether FilterTypes marks descriptors that ARE or
// ARE NOT in the given name set.
type FilterFlag int

const (
	FilterOnlyIn FilterFlag = iota
	FilterNotIn
)

// GetFilter returns the chain's filter bitmap, allocating a
// zero-valued (nothing skipped) one sized to the chain's descriptor
// count if createIfAbsent and none exists yet.  Touching the filter
// always resets the chain's index.
func GetFilter(d Driver, s *State, createIfAbsent bool) []bool {
	s.Reset()
	if s.Filter == nil && createIfAbsent {
		s.Filter = make([]bool, len(d.Descriptors()))
	}
	return s.Filter
}

// FilterTypes marks descriptors as skipped: with FilterOnlyIn every
// descriptor whose name is not among names, with FilterNotIn every
// descriptor whose name is.
func FilterTypes(d Driver, s *State, flag FilterFlag, names []string) {
	filter := GetFilter(d, s, true)
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for i, desc := range d.Descriptors() {
		in := set[desc.Name]
		switch flag {
		case FilterOnlyIn:
			filter[i] = !in
		case FilterNotIn:
			filter[i] = in
		}
	}
}

// InvertFilter complements every bit of the chain's filter.
func InvertFilter(d Driver, s *State) {
	filter := GetFilter(d, s, true)
	for i := range filter {
		filter[i] = !filter[i]
	}
}

// ResetFilter clears the chain's filter bitmap entirely (nothing
// skipped).
func ResetFilter(s *State) {
	s.Reset()
	s.Filter = nil
}

// Skipped reports whether descriptor index i is filtered out.
func (s *State) Skipped(i int) bool {
	return s.Filter != nil && i < len(s.Filter) && s.Filter[i]
}
