// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prober implements the Prober object, the top-level binding
// of a device handle, probing window, buffer cache, chain array, and
// result value list.  It also implements the iteration driver
// (DoProbe, DoSafeprobe, DoFullprobe, StepBack, DoWipe) over the
// chain+descriptor matrix.
//
// The public constructor and method names (NewProbeFromFilename,
// EnablePartitions, DoSafeprobe, LookupValue, GetPartitions) follow
// the libblkid API this library re-derives.
package prober

import (
	"fmt"
	"os"

	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/chains/partitions"
	"github.com/lukeshu/blkid-go/lib/probe/chains/superblocks"
	"github.com/lukeshu/blkid-go/lib/probe/chains/topology"
	"github.com/lukeshu/blkid-go/lib/probe/diskcache"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// Flags are the Prober's mode bits.
type Flags uint8

const (
	FlagPrivateFD Flags = 1 << iota
	FlagTinyDev
	FlagCDROMDev
	FlagNoScanDev
)

type window struct {
	off, size diskio.Addr
}

// Prober binds everything one probing pass needs: a device
// handle, a probing window, a buffer cache, one chain-state per
// chain, a result value list, and wipe tracking.
type Prober struct {
	file  diskio.File
	flags Flags

	win   window
	cache *diskcache.Cache

	chains []chain.Driver
	states []*chain.State
	values valuelist.List
	wipe   chain.WipeArea

	curChain int // -1 = not yet started

	parent    *Prober
	wholeDisk *Prober

	logicalSectorSize  int
	physicalSectorSize int
}

// defaultChains constructs the fixed, sealed chain set in the
// required order; a chain's ID must equal its array position, which
// New enforces mechanically via a panic on mismatch.
func defaultChains() []chain.Driver {
	return []chain.Driver{superblocks.New(), partitions.New(), topology.New()}
}

// New constructs a Prober bound to an already-open File. ownsFile
// controls whether Close() closes the underlying file (the
// private-fd flag).
func New(file diskio.File, ownsFile bool) *Prober {
	p := &Prober{
		file:     file,
		curChain: -1,
		chains:   defaultChains(),
	}
	if ownsFile {
		p.flags |= FlagPrivateFD
	}
	p.states = make([]*chain.State, len(p.chains))
	for i, c := range p.chains {
		if c.ID() != valuelist.ChainID(i) {
			panic(fmt.Sprintf("prober: chain %q has ID %d but occupies array position %d; "+
				"a chain's integer ID must equal its position", c.Name(), c.ID(), i))
		}
		p.states[i] = chain.NewState(c)
	}
	p.win = window{off: 0, size: file.Size()}
	p.cache = diskcache.New(file, p.win.off, p.win.size, nil)
	return p
}

// NewProbeFromFilename opens name read-only and returns a Prober that
// owns the resulting file descriptor.
func NewProbeFromFilename(name string) (*Prober, error) {
	f, err := diskio.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("prober: %w", err)
	}
	return New(f, true), nil
}

// NewProbeFromFd wraps an already-open file descriptor the caller
// retains ownership of; Close on the resulting Prober will not close
// fd.
func NewProbeFromFd(fd int) (*Prober, error) {
	osf := os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
	if osf == nil {
		return nil, fmt.Errorf("prober: invalid file descriptor %d", fd)
	}
	f, err := diskio.NewOSFile(osf)
	if err != nil {
		return nil, fmt.Errorf("prober: %w", err)
	}
	return New(f, false), nil
}

// Close releases the prober: unmaps cached buffers, closes the
// underlying descriptor only if FlagPrivateFD is set, and recursively
// closes any lazily opened whole-disk prober.
func (p *Prober) Close() error {
	p.cache.Reset()
	if p.wholeDisk != nil {
		_ = p.wholeDisk.Close()
		p.wholeDisk = nil
	}
	if p.flags&FlagPrivateFD != 0 {
		return p.file.Close()
	}
	return nil
}

// SetDevice closes any owned descriptor and rebinds the prober to a
// new file, resetting all probing state.
func (p *Prober) SetDevice(file diskio.File, ownsFile bool) error {
	if p.flags&FlagPrivateFD != 0 {
		if err := p.file.Close(); err != nil {
			return err
		}
	}
	p.file = file
	if ownsFile {
		p.flags |= FlagPrivateFD
	} else {
		p.flags &^= FlagPrivateFD
	}
	p.win = window{off: 0, size: file.Size()}
	p.cache = diskcache.New(file, p.win.off, p.win.size, nil)
	p.ResetProbe()
	return nil
}

// SetDimension narrows the probing window to [off, off+size) within
// the device; the window must lie wholly within [0, device_size].
func (p *Prober) SetDimension(off, size diskio.Addr) error {
	if off < 0 || size < 0 || off+size > p.file.Size() {
		return fmt.Errorf("prober: invalid-argument: window [%d,%d) escapes device of size %d",
			off, off+size, p.file.Size())
	}
	p.win = window{off: off, size: size}
	p.cache.SetWindow(off, size)
	p.ResetProbe()
	return nil
}

// ResetProbe rewinds every chain to its pre-start position, clears
// accumulated values and wipe tracking, and invalidates the buffer
// cache.  Calling it twice is idempotent.
func (p *Prober) ResetProbe() {
	p.curChain = -1
	for _, s := range p.states {
		s.Reset()
	}
	p.values.Reset()
	p.wipe.Reset()
	p.cache.Reset()
}

func (p *Prober) ctx() *chain.Context {
	return &chain.Context{
		Cache:              p.cache,
		Values:             &p.values,
		DeviceSize:         p.win.size,
		Wipe:               &p.wipe,
		LogicalSectorSize:  p.logicalSectorSize,
		PhysicalSectorSize: p.physicalSectorSize,
	}
}

func (p *Prober) ctxFor(id valuelist.ChainID) *chain.Context {
	c := p.ctx()
	c.ChainID = id
	return c
}

// Values exposes the accumulated value list.
func (p *Prober) Values() *valuelist.List { return &p.values }
