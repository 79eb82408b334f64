// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package entry implements the mount-table entry record: one
// filesystem line, whether it came from fstab/mtab or from
// /proc/self/mountinfo.
package entry

import (
	"strings"

	"github.com/lukeshu/blkid-go/lib/containers"
	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
)

// Entry is one filesystem line. Source, Target, Type, and the
// fs/vfs option strings apply to every dialect; the MountID..Attrs
// fields are populated only when the entry came from a mountinfo
// table.
type Entry struct {
	Source  string // device/spec, or "" meaning "none"
	Target  string // mount point
	Type    string
	FSOpts  string // mountinfo super options; for fstab, the whole options column, unsplit
	VFSOpts string // mountinfo per-mount options (noexec, ro, ...); empty for fstab

	// Tag is populated when Source parses as a TAG=VALUE spec.
	Tag    tagspec.Tag
	HasTag bool

	// mountinfo-only fields.
	MountID        int
	ParentID       int
	DevMajor       uint32
	DevMinor       uint32
	Root           string // fs-root subtree (kernel mountinfo field 4)
	OptionalFields string
	Attrs          string

	Freq   int
	Passno int

	Comment string

	refs int32
}

// New constructs an Entry, parsing Source as a TAG=VALUE spec when
// it looks like one.
func New(source, target, fstype, vfsOpts, fsOpts string) *Entry {
	e := &Entry{Source: source, Target: target, Type: fstype, VFSOpts: vfsOpts, FSOpts: fsOpts}
	if tag, err := tagspec.Parse(source); err == nil {
		e.Tag, e.HasTag = tag, true
	}
	return e
}

// Ref increments the entry's reference count; entries may be shared
// between tables, each table owning one reference per appearance.
func (e *Entry) Ref() { e.refs++ }

// Unref decrements the reference count and reports whether it reached
// zero.
func (e *Entry) Unref() bool {
	e.refs--
	return e.refs <= 0
}

// Options returns the combined fs+vfs option string, comma-joined,
// the conventional single "options" column.
func (e *Entry) Options() string {
	switch {
	case e.VFSOpts == "":
		return e.FSOpts
	case e.FSOpts == "":
		return e.VFSOpts
	default:
		return e.VFSOpts + "," + e.FSOpts
	}
}

// HasOption reports whether name appears, bare or as name=value, in
// the entry's combined options.
func (e *Entry) HasOption(name string) bool {
	for _, opt := range strings.Split(e.Options(), ",") {
		if opt == name || strings.HasPrefix(opt, name+"=") {
			return true
		}
	}
	return false
}

// OptionValue returns the value of a name=value option, if present.
func (e *Entry) OptionValue(name string) (string, bool) {
	prefix := name + "="
	for _, opt := range strings.Split(e.Options(), ",") {
		if strings.HasPrefix(opt, prefix) {
			return opt[len(prefix):], true
		}
	}
	return "", false
}

// pseudoFSTypes are kernel pseudo filesystems with no backing
// device; the lookup engine's source-path passes skip these.
var pseudoFSTypes = containers.NewSet(
	"proc", "sysfs", "devpts", "devtmpfs", "tmpfs", "cgroup", "cgroup2",
	"pstore", "securityfs", "debugfs", "configfs", "selinuxfs", "autofs",
	"mqueue", "hugetlbfs", "bpf", "tracefs", "binfmt_misc", "rpc_pipefs",
)

// netFSTypes are networked filesystems the canonicalized-source
// lookup pass skips.
var netFSTypes = containers.NewSet("nfs", "nfs4", "cifs", "smb3", "smbfs", "afs", "ncpfs")

// IsPseudoFS reports whether the entry's filesystem type is a kernel
// pseudo filesystem with no backing device.
func (e *Entry) IsPseudoFS() bool { return pseudoFSTypes.Has(e.Type) }

// IsSwap reports whether the entry describes a swap area.
func (e *Entry) IsSwap() bool { return e.Type == "swap" }

// IsNetFS reports whether the entry's filesystem type is networked.
func (e *Entry) IsNetFS() bool { return netFSTypes.Has(e.Type) }

// Devno packs the mountinfo device number into a single comparable
// value.
func (e *Entry) Devno() uint64 {
	return uint64(e.DevMajor)<<32 | uint64(e.DevMinor)
}
