// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package table implements the mount-table object: an ordered list
// of entries with insertion-order iteration, an optional shared path
// cache, comment bookends, and the contract the text parsers in
// lib/mount/parse populate it through.
package table

import (
	"github.com/lukeshu/blkid-go/lib/mount/entry"
	"github.com/lukeshu/blkid-go/lib/mount/pathcache"
)

// ErrFunc is a caller-installed parse-error callback: the default
// policy treats every parse error as recoverable and continues, so a
// nil ErrFunc silently drops the line.
type ErrFunc func(lineno int, line string, err error)

// Table is an ordered list of filesystem entries.  The zero Table is
// ready to use with comments disabled.
type Table struct {
	entries []*entry.Entry

	// Comments enables comment capture. lib/mount/parse then
	// attaches comment lines to the following entry's Comment and
	// a trailing block to TailComment; it does not fill
	// IntroComment.
	Comments     bool
	IntroComment string
	TailComment  string

	// Cache is the optional shared path-canonicalization cache the
	// lookup engine's later passes consult.  Several tables may
	// point at the same Cache; synchronization is left to the
	// caller.
	Cache *pathcache.Cache

	// ErrFn receives parse errors from whatever parser populated
	// this table, if the caller installed one.
	ErrFn ErrFunc

	// Changed is set when Remove or UniqFS drops an entry; Add does
	// not set it.
	Changed bool
}

// New creates an empty table.
func New() *Table {
	return &Table{}
}

// NumEntries returns the number of entries, always equal to
// len(Entries()).
func (t *Table) NumEntries() int { return len(t.entries) }

// Add appends e to the table, taking a reference on it.
func (t *Table) Add(e *entry.Entry) {
	e.Ref()
	t.entries = append(t.entries, e)
}

// Remove deletes e from the table (by pointer identity), decrementing
// its reference count and marking the table changed. Reports whether
// e was found.
func (t *Table) Remove(e *entry.Entry) bool {
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			e.Unref()
			t.Changed = true
			return true
		}
	}
	return false
}

// Entries returns every entry in insertion order. The caller must not
// mutate the returned slice.
func (t *Table) Entries() []*entry.Entry { return t.entries }

// UniqFS drops every entry that equal() reports as a duplicate of an
// earlier entry, preserving the relative order of the survivors.
// Dropped entries are unreferenced; the table is marked changed when
// anything was dropped.  Returns how many entries were dropped.
func (t *Table) UniqFS(equal func(a, b *entry.Entry) bool) int {
	kept := t.entries[:0]
	dropped := 0
	for _, cand := range t.entries {
		dup := false
		for _, prev := range kept {
			if equal(prev, cand) {
				dup = true
				break
			}
		}
		if dup {
			cand.Unref()
			dropped++
			continue
		}
		kept = append(kept, cand)
	}
	t.entries = kept
	if dropped > 0 {
		t.Changed = true
	}
	return dropped
}

// Direction selects iteration order: Forward is insertion order,
// Backward is reverse-insertion order. For mountinfo tables, backward
// iteration yields the most-recently-mounted entry first, which is
// the usual correct answer for "where is X mounted now?".
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Iterate returns the entries ordered per dir. Forward returns the
// underlying slice; Backward returns a freshly allocated reversed
// copy so callers may range over it without the caller mutating the
// table's own order.
func (t *Table) Iterate(dir Direction) []*entry.Entry {
	if dir == Forward {
		return t.entries
	}
	out := make([]*entry.Entry, len(t.entries))
	for i, e := range t.entries {
		out[len(t.entries)-1-i] = e
	}
	return out
}
