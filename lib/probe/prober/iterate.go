// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package prober

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/chains/partitions"
	"github.com/lukeshu/blkid-go/lib/probe/chains/superblocks"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
)

// ErrDone is returned by DoSafeprobe/DoFullprobe when no chain
// matched; DoProbe instead signals this via (StatusDone, nil).
var ErrDone = errors.New("prober: no signature found")

// Status is the outcome of one DoProbe call.
type Status int

const (
	StatusOK Status = iota
	StatusDone
)

// DoProbe is the one-match-per-call iteration driver: it
// resumes from the current chain and descriptor index, returns as
// soon as one descriptor matches, and returns StatusDone only once
// every chain is exhausted.
func (p *Prober) DoProbe() (Status, error) {
	if p.curChain == -1 {
		p.curChain = 0
	}
	for p.curChain < len(p.chains) {
		state := p.states[p.curChain]
		if !state.Enabled {
			p.curChain++
			continue
		}
		ctx := p.ctxFor(valuelist.ChainID(p.curChain))
		ok, err := p.chains[p.curChain].Probe(ctx, state)
		if err != nil {
			return StatusOK, err
		}
		if ok {
			return StatusOK, nil
		}
		p.curChain++
	}
	return StatusDone, nil
}

// DoSafeprobe probes conservatively: every chain is
// walked independently in safeprobe mode. Any chain's ambivalence
// short-circuits with ErrAmbivalent; otherwise ErrDone is returned
// if no chain matched.
func (p *Prober) DoSafeprobe() error {
	return p.aggregateProbe(true)
}

// DoFullprobe is like DoSafeprobe but never returns ErrAmbivalent: a
// chain whose matches are ambivalent is skipped, contributing no
// values (its SafeProbe discards them), and the remaining chains are
// still probed. ErrDone is returned if no chain produced an
// unambiguous match.
func (p *Prober) DoFullprobe() error {
	return p.aggregateProbe(false)
}

func (p *Prober) aggregateProbe(strict bool) error {
	p.ResetProbe()
	anyMatch := false
	for i, state := range p.states {
		if !state.Enabled {
			continue
		}
		ctx := p.ctxFor(valuelist.ChainID(i))
		ok, err := p.chains[i].SafeProbe(ctx, state)
		if err != nil {
			if errors.Is(err, chain.ErrAmbivalent) {
				if strict {
					return chain.ErrAmbivalent
				}
				continue
			}
			return err
		}
		if ok {
			anyMatch = true
		}
	}
	if !anyMatch {
		return ErrDone
	}
	return nil
}

// StepBack decrements the current chain's descriptor index; if it
// becomes -1, rewinds to the previous chain.  Always invalidates the
// buffer cache, since the caller may have modified the device.
func (p *Prober) StepBack() error {
	defer p.cache.Reset()
	if p.curChain < 0 || p.curChain >= len(p.chains) {
		return nil
	}
	state := p.states[p.curChain]
	state.Idx--
	if state.Idx < -1 {
		state.Idx = -1
	}
	if state.Idx == -1 {
		p.curChain--
	}
	p.wipe.Reset()
	return nil
}

// DoWipe erases the most recent match's signature: it locates the magic
// offset/length of the current chain's most recent match and, unless
// dryRun, zeroes that region and steps back so the next DoProbe
// retries the same descriptor (exposing backup superblocks).
func (p *Prober) DoWipe(dryRun bool) error {
	if p.curChain < 0 || p.curChain >= len(p.chains) {
		return fmt.Errorf("prober: do_wipe: no active match to wipe")
	}
	chainID := valuelist.ChainID(p.curChain)
	var offsetTag, magicTag string
	switch chainID {
	case superblocks.ID:
		offsetTag, magicTag = "SBMAGIC_OFFSET", "SBMAGIC"
	case partitions.ID:
		offsetTag, magicTag = "PTMAGIC_OFFSET", "PTMAGIC"
	default:
		return fmt.Errorf("prober: do_wipe: chain %d has no wipe tags", p.curChain)
	}

	offVal, ok := p.values.Get(chainID, offsetTag)
	if !ok {
		return fmt.Errorf("prober: do_wipe: no %s on the value list", offsetTag)
	}
	magicVal, ok := p.values.Get(chainID, magicTag)
	if !ok {
		return fmt.Errorf("prober: do_wipe: no %s on the value list", magicTag)
	}

	off, err := strconv.ParseInt(offVal.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("prober: do_wipe: bad offset %q: %w", offVal.String(), err)
	}
	length := magicVal.Len
	const maxWipeLen = 4096 // sane upper bound against a corrupt length field
	if length > maxWipeLen {
		length = maxWipeLen
	}
	if length <= 0 {
		return fmt.Errorf("prober: do_wipe: non-positive wipe length %d", length)
	}

	if !dryRun {
		zeros := make([]byte, length)
		if _, err := p.file.WriteAt(zeros, diskio.Addr(off)); err != nil {
			return fmt.Errorf("prober: do_wipe: %w", err)
		}
		return p.StepBack()
	}
	return nil
}
