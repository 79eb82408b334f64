// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package lookup implements the mount-table query engine: the
// multi-pass FindTarget/FindSrcPath/FindTag/FindSource/
// FindMountpoint/FindPair/FindDevno searches, plus the bind-mount/
// btrfs-subvolume fs-root derivation and the "is this fstab entry
// already mounted" algorithm.
package lookup

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/lukeshu/blkid-go/lib/linux"
	"github.com/lukeshu/blkid-go/lib/mount/entry"
	"github.com/lukeshu/blkid-go/lib/mount/pathcache"
	"github.com/lukeshu/blkid-go/lib/mount/table"
	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
)

// Direction re-exports table.Direction so callers of this package
// rarely need to import table directly for the common case.
type Direction = table.Direction

const (
	Forward  = table.Forward
	Backward = table.Backward
)

// ErrNotFound is returned by every find_* operation when no entry
// matches.
var ErrNotFound = errors.New("lookup: no matching entry")

// Engine is the lookup engine bound to one table.
// The zero Engine is not usable; use New.
type Engine struct {
	Table *table.Table
	Cache *pathcache.Cache

	// ReadDeviceTags probes devicePath for its TAG=VALUE results,
	// used by FindSrcPath's tag pass.  Nil means the device
	// is treated as inaccessible, falling through to the
	// udev-symlink evaluation path.
	ReadDeviceTags func(devicePath string) ([]tagspec.Tag, error)

	// ResolveTag resolves a TAG=VALUE pair to a device path the
	// way udev's /dev/disk/by-* symlinks do.
	// Defaults to udevResolve.
	ResolveTag func(tag tagspec.Tag) (string, bool)

	// StatDevno resolves a path to the device number identifying
	// its block device.  Defaults to
	// lib/linux.StatDevno; tests substitute a stub so IsFSMounted
	// doesn't depend on real device nodes existing.
	StatDevno func(path string) (major, minor uint32, ok bool)
}

// New creates an Engine over t with udev-symlink tag resolution and
// no device-tag reader (callers that have a working prober should set
// ReadDeviceTags explicitly to avoid this package depending on
// lib/probe).
func New(t *table.Table) *Engine {
	return &Engine{
		Table:     t,
		Cache:     t.Cache,
		ResolveTag: udevResolve,
		StatDevno: func(path string) (uint32, uint32, bool) {
			maj, min, ok, err := linux.StatDevno(path)
			return maj, min, ok && err == nil
		},
	}
}

func (e *Engine) resolveTag(tag tagspec.Tag) (string, bool) {
	if e.ResolveTag != nil {
		return e.ResolveTag(tag)
	}
	return udevResolve(tag)
}

func (e *Engine) canon(path string) (string, bool) {
	if e.Cache == nil {
		return "", false
	}
	return e.Cache.Canonicalize(path), true
}

// FindTarget looks an entry up by mount point: three passes over
// the table, from native string comparison through full
// canonicalization.
func (e *Engine) FindTarget(path string, dir Direction) (*entry.Entry, error) {
	// Pass 1: native compare.
	for _, ent := range e.Table.Iterate(dir) {
		if ent.Target == path {
			return ent, nil
		}
	}
	// Pass 2: canonicalize the caller's path only.
	if canonPath, ok := e.canon(path); ok {
		for _, ent := range e.Table.Iterate(dir) {
			if ent.Target == canonPath {
				return ent, nil
			}
		}
		// Pass 3: canonicalize both sides; skip swap, pseudo FS,
		// and "/" (which always matches and would short-circuit
		// every lookup against the root entry).
		for _, ent := range e.Table.Iterate(dir) {
			if ent.IsSwap() || ent.IsPseudoFS() || ent.Target == "/" {
				continue
			}
			canonTarget, ok := e.canon(ent.Target)
			if ok && canonTarget == canonPath {
				return ent, nil
			}
		}
	}
	return nil, ErrNotFound
}

// FindSrcPath looks an entry up by source path: four passes,
// the third of which resolves tagged entries against the caller's
// device (directly, or via udev symlinks when the device cannot be
// probed).
func (e *Engine) FindSrcPath(path string, dir Direction) (*entry.Entry, error) {
	// Pass 1: native source equality.
	for _, ent := range e.Table.Iterate(dir) {
		if ent.Source == path {
			return ent, nil
		}
	}
	canonPath, havePath := e.canon(path)
	// Pass 2: canonicalized caller vs native entries.
	if havePath {
		for _, ent := range e.Table.Iterate(dir) {
			if ent.Source == canonPath {
				return ent, nil
			}
		}
	}
	// Pass 3: tagged entries, matched against the caller's device
	// tags (read directly, or evaluated via udev when inaccessible).
	if e.tableHasTags() {
		deviceTags, devErr := e.deviceTags(path)
		for _, ent := range e.Table.Iterate(dir) {
			if !ent.HasTag {
				continue
			}
			if devErr == nil {
				if tagsContain(deviceTags, ent.Tag) {
					return ent, nil
				}
				continue
			}
			if resolved, ok := e.resolveTag(ent.Tag); ok && (resolved == path || (havePath && resolved == canonPath)) {
				return ent, nil
			}
		}
	}
	// Pass 4: canonicalized caller vs canonicalized entry source,
	// skipping network and pseudo filesystems.
	if havePath {
		for _, ent := range e.Table.Iterate(dir) {
			if ent.IsNetFS() || ent.IsPseudoFS() || ent.Source == "" {
				continue
			}
			canonSrc, ok := e.canon(ent.Source)
			if ok && canonSrc == canonPath {
				return ent, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (e *Engine) tableHasTags() bool {
	for _, ent := range e.Table.Entries() {
		if ent.HasTag {
			return true
		}
	}
	return false
}

func (e *Engine) deviceTags(devicePath string) ([]tagspec.Tag, error) {
	if e.ReadDeviceTags == nil {
		return nil, errors.New("lookup: no device-tag reader configured")
	}
	return e.ReadDeviceTags(devicePath)
}

func tagsContain(tags []tagspec.Tag, want tagspec.Tag) bool {
	for _, t := range tags {
		if t.Name == want.Name && t.Value == want.Value {
			return true
		}
	}
	return false
}

// FindTag looks an entry up by its tag: a literal-pair pass,
// then (with a cache) a udev-resolved delegation to FindSrcPath.
func (e *Engine) FindTag(tag tagspec.Tag, dir Direction) (*entry.Entry, error) {
	for _, ent := range e.Table.Iterate(dir) {
		if ent.HasTag && ent.Tag == tag {
			return ent, nil
		}
	}
	if e.Cache != nil {
		if resolved, ok := e.resolveTag(tag); ok {
			return e.FindSrcPath(resolved, dir)
		}
	}
	return nil, ErrNotFound
}

// FindSource dispatches on the spec string's shape: a spec
// string that parses as TAG=VALUE goes to FindTag, everything else to
// FindSrcPath.
func (e *Engine) FindSource(spec string, dir Direction) (*entry.Entry, error) {
	if tag, err := tagspec.Parse(spec); err == nil {
		return e.FindTag(tag, dir)
	}
	return e.FindSrcPath(spec, dir)
}

// FindMountpoint finds the mount covering a path: peel
// trailing path components, retrying FindTarget each time, falling
// back to the root.
func (e *Engine) FindMountpoint(path string, dir Direction) (*entry.Entry, error) {
	cur := filepath.Clean(path)
	for {
		if ent, err := e.FindTarget(cur, dir); err == nil {
			return ent, nil
		}
		if cur == "/" || cur == "." {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return e.FindTarget("/", dir)
}

// FindPair is a single pass
// matching full source and target equality per entry.
func (e *Engine) FindPair(source, target string, dir Direction) (*entry.Entry, error) {
	for _, ent := range e.Table.Iterate(dir) {
		if ent.Source == source && ent.Target == target {
			return ent, nil
		}
	}
	return nil, ErrNotFound
}

// FindDevno is a single pass by
// mountinfo device number.
func (e *Engine) FindDevno(devno uint64, dir Direction) (*entry.Entry, error) {
	for _, ent := range e.Table.Iterate(dir) {
		if ent.Devno() == devno {
			return ent, nil
		}
	}
	return nil, ErrNotFound
}

// udevResolve models udev's /dev/disk/by-* symlink farm: it reports
// the device a TAG=VALUE spec resolves to without requiring a running
// udev daemon, by checking the conventional symlink path directly
// (the same information udevadm would report, read straight off disk
// instead of through the udev database).
func udevResolve(tag tagspec.Tag) (string, bool) {
	dir, ok := udevByDir(tag.Name)
	if !ok {
		return "", false
	}
	link := filepath.Join("/dev/disk", dir, escapeUdevValue(tag.Value))
	if !linux.Exists(link) {
		return "", false
	}
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", false
	}
	return target, true
}

func udevByDir(tagName string) (string, bool) {
	switch tagName {
	case "LABEL":
		return "by-label", true
	case "UUID":
		return "by-uuid", true
	case "PARTUUID":
		return "by-partuuid", true
	case "PARTLABEL":
		return "by-partlabel", true
	default:
		return "", false
	}
}

// escapeUdevValue encodes bytes udev itself escapes in symlink names
// (systemd-udevd replaces '/' with "\x2f" and non-printable or
// whitespace bytes similarly; this covers the common case of '/'
// appearing in a label).
func escapeUdevValue(v string) string {
	return strings.ReplaceAll(v, "/", `\x2f`)
}
