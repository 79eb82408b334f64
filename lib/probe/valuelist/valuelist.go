// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package valuelist implements the ordered, named, chain-tagged result
// bag that a probe accumulates values into.  The invariant it holds
// is that there is at most one value per (chain, name) pair.
package valuelist

import (
	"fmt"
)

// ChainID identifies which chain produced a value.  Chains are a
// sealed, fixed-index set: a chain's
// integer ID equals its position in the chain array.
type ChainID int

// Value is one NAME=value result.  Data is always zero-terminated for
// string safety; Len reflects the caller's declared length (which for
// strings includes the terminator, and for binary data does not).
type Value struct {
	Chain ChainID
	Name  string
	Data  []byte // always has a trailing 0x00 appended beyond Len
	Len   int
	// Binary is true when this value was produced by SetBinary; a
	// binary value's Data is the declared-length payload plus the
	// trailing zero, not a string with a length tag.
	Binary bool
}

// String returns the value's data as a Go string, trimmed of the
// zero-terminator, regardless of whether it was stored as string or
// binary data.
func (v *Value) String() string {
	n := v.Len
	if !v.Binary && n > 0 && v.Data[n-1] == 0 {
		n--
	}
	return string(v.Data[:n])
}

// Bytes returns the first Len bytes of Data: the payload of a binary
// value, or a string value's text plus its zero terminator.
func (v *Value) Bytes() []byte {
	return v.Data[:v.Len]
}

type key struct {
	chain ChainID
	name  string
}

// List is the ordered, deduplicated value bag produced by one probe.
// The zero List is ready to use.
type List struct {
	values []*Value
	index  map[key]int // key -> index into values
}

// Len returns the number of values currently on the list.
func (l *List) Len() int { return len(l.values) }

// All returns the values in insertion order. The caller must not
// mutate the returned slice.
func (l *List) All() []*Value { return l.values }

// Get returns the value named name produced by chain, if any.
func (l *List) Get(chain ChainID, name string) (*Value, bool) {
	if l.index == nil {
		return nil, false
	}
	idx, ok := l.index[key{chain, name}]
	if !ok {
		return nil, false
	}
	return l.values[idx], true
}

// GetAny returns the value named name regardless of which chain
// produced it -- the first match in insertion order, since the
// at-most-one-signature-per-device policy means only one chain's
// matches typically survive a full probe.
func (l *List) GetAny(name string) (*Value, bool) {
	for _, v := range l.values {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

func (l *List) set(chain ChainID, name string, data []byte, declaredLen int, binary bool) error {
	if name == "" {
		return fmt.Errorf("valuelist: invalid-argument: empty value name")
	}
	k := key{chain, name}
	if l.index == nil {
		l.index = make(map[key]int)
	}
	buf := make([]byte, declaredLen+1)
	copy(buf, data)
	v := &Value{Chain: chain, Name: name, Data: buf, Len: declaredLen, Binary: binary}
	if idx, ok := l.index[k]; ok {
		l.values[idx] = v
		return nil
	}
	l.index[k] = len(l.values)
	l.values = append(l.values, v)
	return nil
}

// SetString sets a string-typed value; s is copied and
// zero-terminated, and the declared length includes the terminator.
func (l *List) SetString(chain ChainID, name, s string) error {
	return l.set(chain, name, []byte(s), len(s)+1, false)
}

// SetStringf is SetString with fmt.Sprintf formatting.
func (l *List) SetStringf(chain ChainID, name, format string, args ...any) error {
	return l.SetString(chain, name, fmt.Sprintf(format, args...))
}

// SetBinary sets a binary-typed value; the declared length does not
// include a terminator, though a trailing zero byte is still stored.
func (l *List) SetBinary(chain ChainID, name string, data []byte) error {
	return l.set(chain, name, data, len(data), true)
}

// DropChain removes every value produced by chain, used when a later
// chain's wiper policy invalidates an earlier chain's
// match, or when safeprobe ambivalence discards a chain's partial
// results.
func (l *List) DropChain(chain ChainID) {
	if len(l.values) == 0 {
		return
	}
	kept := l.values[:0]
	for _, v := range l.values {
		if v.Chain == chain {
			delete(l.index, key{chain, v.Name})
			continue
		}
		kept = append(kept, v)
	}
	l.values = kept
	l.reindex()
}

// Reset empties the list entirely, as done when a probe restarts.
func (l *List) Reset() {
	l.values = nil
	l.index = nil
}

func (l *List) reindex() {
	l.index = make(map[key]int, len(l.values))
	for i, v := range l.values {
		l.index[key{v.Chain, v.Name}] = i
	}
}
