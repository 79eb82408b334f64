// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package topology is the minimal third chain: a passthrough of the
// logical/physical sector size the prober already knows about the
// whole disk.  It carries no magic descriptors of its own -- its
// single descriptor always "matches" once, and the driver's Probe
// method sets the sizes directly, without a descriptor callback or
// idinfo.MatchMagics.
package topology

import (
	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/idinfo"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// ID is this chain's fixed array position; topology runs last,
// matching libblkid's BLKID_CHAIN_TOPLGY ordering.
const ID valuelist.ChainID = 2

type Driver struct {
	desc *idinfo.Descriptor
}

func New() *Driver {
	return &Driver{desc: &idinfo.Descriptor{Name: "topology", Usage: idinfo.UsageOther}}
}

var _ chain.Driver = (*Driver)(nil)

func (d *Driver) ID() valuelist.ChainID             { return ID }
func (d *Driver) Name() string                      { return "topology" }
func (d *Driver) SupportsFilter() bool              { return false }
func (d *Driver) DefaultEnabled() bool              { return false }
func (d *Driver) FreeData(s *chain.State)           { s.Private = nil }
func (d *Driver) Descriptors() []*idinfo.Descriptor { return []*idinfo.Descriptor{d.desc} }

func (d *Driver) Probe(ctx *chain.Context, state *chain.State) (bool, error) {
	if state.Idx+1 >= 1 {
		return false, nil
	}
	state.Idx = 0
	logical := ctx.LogicalSectorSize
	if logical == 0 {
		logical = 512
	}
	physical := ctx.PhysicalSectorSize
	if physical == 0 {
		physical = logical
	}
	_ = ctx.Values.SetStringf(ctx.ChainID, "LOGICAL_SECTOR_SIZE", "%d", logical)
	_ = ctx.Values.SetStringf(ctx.ChainID, "PHYSICAL_SECTOR_SIZE", "%d", physical)
	return true, nil
}

func (d *Driver) SafeProbe(ctx *chain.Context, state *chain.State) (bool, error) {
	return d.Probe(ctx, state)
}
