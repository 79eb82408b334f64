// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package prober

import "github.com/lukeshu/blkid-go/lib/probe/chains/partitions"

// PartList is the partition table surfaced by Prober.GetPartitions.
// Its accessor-style shape (GetPartitions/GetName/GetUUID/GetStart/
// GetSize) follows the conventional libblkid partlist binding
// surface.
type PartList struct {
	result *partitions.TableResult
}

// Type reports the partition-table type ("dos" or "gpt").
func (l *PartList) Type() string { return l.result.PTType }

// GetPartitions returns every partition-table entry found, in
// on-disk order.
func (l *PartList) GetPartitions() []*Partition {
	ret := make([]*Partition, len(l.result.Entries))
	for i := range l.result.Entries {
		ret[i] = &Partition{entry: &l.result.Entries[i]}
	}
	return ret
}

// Partition is one partition-table entry.
type Partition struct {
	entry *partitions.Entry
}

func (p *Partition) GetPartno() int   { return p.entry.Number }
func (p *Partition) GetName() string  { return p.entry.Name }
func (p *Partition) GetUUID() string  { return p.entry.UUID }
func (p *Partition) GetType() string  { return p.entry.Type }
func (p *Partition) GetStart() int64  { return p.entry.Start }
func (p *Partition) GetSize() int64   { return p.entry.Size }
func (p *Partition) GetFlags() uint64 { return p.entry.Flags }
