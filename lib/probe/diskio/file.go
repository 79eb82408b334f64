// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio defines the generic, address-parameterized file
// contract that the rest of the prober is built on.
package diskio

import (
	"fmt"
	"os"

	"github.com/lukeshu/blkid-go/lib/fmtutil"
)

// Addr is a byte offset into a device, relative to the device's start
// (not relative to a prober's probing window).
type Addr int64

// Format prints addresses as plain decimal regardless of any
// localizing printer upstream; offsets get compared against tool
// output and on-disk math, where digit grouping only hurts.
func (a Addr) Format(f fmt.State, verb rune) {
	fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), int64(a))
}

// File is something that can be read and written at arbitrary byte
// offsets, and whose total size is known.
type File interface {
	Name() string
	Size() Addr
	Close() error
	ReadAt(p []byte, off Addr) (n int, err error)
	WriteAt(p []byte, off Addr) (n int, err error)
}

// Kind classifies the underlying file for buffer-cache allocation
// policy purposes: regular files and block devices are
// mmap-able; character devices are not.
type Kind int

const (
	KindRegular Kind = iota
	KindBlockDevice
	KindCharDevice
	KindOther
)

// OSFile adapts an *os.File to the File interface, classifying it by
// its stat(2) mode.
type OSFile struct {
	*os.File
	kind Kind
	size Addr
}

var _ File = (*OSFile)(nil)

func OpenFile(name string, flag int, perm os.FileMode) (*OSFile, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	of := &OSFile{File: f}
	if err := of.stat(); err != nil {
		f.Close()
		return nil, err
	}
	return of, nil
}

func NewOSFile(f *os.File) (*OSFile, error) {
	of := &OSFile{File: f}
	if err := of.stat(); err != nil {
		return nil, err
	}
	return of, nil
}

func (f *OSFile) stat() error {
	fi, err := f.File.Stat()
	if err != nil {
		return err
	}
	switch {
	case fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice != 0:
		f.kind = KindCharDevice
	case fi.Mode()&os.ModeDevice != 0:
		f.kind = KindBlockDevice
	case fi.Mode().IsRegular():
		f.kind = KindRegular
	default:
		f.kind = KindOther
	}
	if f.kind == KindBlockDevice {
		// Block devices report a zero regular-file size; ask the
		// kernel for the real device size instead.
		sz, err := blockDeviceSize(f.File)
		if err != nil {
			return err
		}
		f.size = Addr(sz)
	} else {
		f.size = Addr(fi.Size())
	}
	return nil
}

func (f *OSFile) Kind() Kind { return f.kind }
func (f *OSFile) Size() Addr { return f.size }

// Mappable reports whether this file is a candidate for mmap-backed
// buffer cache entries: regular files and block devices,
// not character devices.
func (f *OSFile) Mappable() bool {
	return f.kind == KindRegular || f.kind == KindBlockDevice
}

func (f *OSFile) ReadAt(dat []byte, off Addr) (int, error) {
	return f.File.ReadAt(dat, int64(off))
}

func (f *OSFile) WriteAt(dat []byte, off Addr) (int, error) {
	return f.File.WriteAt(dat, int64(off))
}
