// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package prober

import (
	"fmt"

	"github.com/lukeshu/blkid-go/lib/blkidcfg"
	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/chains/partitions"
	"github.com/lukeshu/blkid-go/lib/probe/chains/superblocks"
	"github.com/lukeshu/blkid-go/lib/probe/chains/topology"
	"github.com/lukeshu/blkid-go/lib/probe/diskcache"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

func (p *Prober) enable(id valuelist.ChainID, enable bool) {
	if int(id) < 0 || int(id) >= len(p.states) {
		return
	}
	p.states[id].Enabled = enable
}

// EnableSuperblocks toggles the filesystem-superblock chain.
func (p *Prober) EnableSuperblocks(enable bool) { p.enable(superblocks.ID, enable) }

// EnablePartitions toggles the partition-table chain.  It defaults
// to disabled, matching libblkid's opt-in convention.
func (p *Prober) EnablePartitions(enable bool) { p.enable(partitions.ID, enable) }

// EnableTopology toggles the topology chain.
func (p *Prober) EnableTopology(enable bool) { p.enable(topology.ID, enable) }

// LookupValue returns the string form of a named value produced by
// the most recent probe, searching every chain: the value list is
// tagged per chain, but values are conventionally looked up by name
// alone once the at-most-one-signature-per-device policy has settled
// on a winner.
func (p *Prober) LookupValue(name string) (string, error) {
	v, ok := p.values.GetAny(name)
	if !ok {
		return "", fmt.Errorf("prober: no such value: %s", name)
	}
	return v.String(), nil
}

// NumValues reports how many values are currently on the list.
func (p *Prober) NumValues() int { return p.values.Len() }

// FilterTypes restricts chain to the named descriptors (flag selects
// whether names are the only ones considered, or the only ones
// excluded).  Touching the filter resets the chain's probing
// position.
func (p *Prober) FilterTypes(id valuelist.ChainID, onlyIn bool, names []string) error {
	if int(id) < 0 || int(id) >= len(p.chains) {
		return fmt.Errorf("prober: invalid-argument: no such chain %d", id)
	}
	flag := chain.FilterNotIn
	if onlyIn {
		flag = chain.FilterOnlyIn
	}
	chain.FilterTypes(p.chains[id], p.states[id], flag, names)
	p.curChain = -1
	return nil
}

// InvertFilter complements chain's filter bitmap.
func (p *Prober) InvertFilter(id valuelist.ChainID) error {
	if int(id) < 0 || int(id) >= len(p.chains) {
		return fmt.Errorf("prober: invalid-argument: no such chain %d", id)
	}
	chain.InvertFilter(p.chains[id], p.states[id])
	p.curChain = -1
	return nil
}

// ResetFilter clears chain's filter bitmap.
func (p *Prober) ResetFilter(id valuelist.ChainID) error {
	if int(id) < 0 || int(id) >= len(p.states) {
		return fmt.Errorf("prober: invalid-argument: no such chain %d", id)
	}
	chain.ResetFilter(p.states[id])
	p.curChain = -1
	return nil
}

// ApplyConfig applies a configuration snapshot's PROBE_OFF list as a
// not-in filter on the superblocks chain, so the named descriptors
// are never attempted.  Like any filter mutation, this resets the
// chain's probing position.
func (p *Prober) ApplyConfig(cfg *blkidcfg.Config) {
	if len(cfg.ProbeOff) == 0 {
		return
	}
	chain.FilterTypes(p.chains[superblocks.ID], p.states[superblocks.ID], chain.FilterNotIn, cfg.ProbeOff)
	p.curChain = -1
}

// GetPartitions returns the partition table found by the most recent
// probe, or an error if the partitions chain has not matched.
func (p *Prober) GetPartitions() (*PartList, error) {
	state := p.states[partitions.ID]
	tr, ok := state.Private.(*partitions.TableResult)
	if !ok || tr == nil {
		return nil, fmt.Errorf("prober: no partition table found")
	}
	return &PartList{result: tr}, nil
}

// Clone creates a sub-prober over [off, off+size) of the same device.
// The clone's cache has this prober's cache as its parent
// (diskcache.New's parent argument): a read that the parent's window
// fully covers is forwarded to it, and any other read is cached by the
// clone itself.
func (p *Prober) Clone(off, size diskio.Addr) (*Prober, error) {
	if off < 0 || size < 0 || off+size > p.win.off+p.win.size {
		return nil, fmt.Errorf("prober: invalid-argument: clone window [%d,%d) escapes parent window", off, off+size)
	}
	clone := &Prober{
		file:     p.file,
		flags:    p.flags &^ FlagPrivateFD, // a clone never owns the descriptor
		chains:   defaultChains(),
		curChain: -1,
		win:      window{off: off, size: size},
		parent:   p,
	}
	clone.states = make([]*chain.State, len(clone.chains))
	for i, c := range clone.chains {
		clone.states[i] = chain.NewState(c)
	}
	clone.cache = diskcache.New(p.file, off, size, p.cache)
	return clone, nil
}

// WholeDisk lazily opens (and caches) a Prober over the whole-disk
// device backing this one, when the two differ (e.g. this prober was
// constructed over a partition). Since this library does not itself
// enumerate devices, callers that know the
// whole-disk path provide it explicitly.
func (p *Prober) WholeDisk(path string) (*Prober, error) {
	if p.wholeDisk != nil {
		return p.wholeDisk, nil
	}
	wd, err := NewProbeFromFilename(path)
	if err != nil {
		return nil, err
	}
	p.wholeDisk = wd
	return wd, nil
}
