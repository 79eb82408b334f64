// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lookup

import (
	"strconv"

	"github.com/lukeshu/blkid-go/lib/linux"
	"github.com/lukeshu/blkid-go/lib/mount/entry"
)

// IsFSMounted answers: does fstabEntry already
// appear, effectively, among mountinfoEngine's entries? Swaps and
// pseudo filesystems are never "mounted" in this sense and always
// report false. A btrfs entry with neither subvol nor subvolid also
// reports false when the default-subvolume query fails.
func IsFSMounted(fstabEntry *entry.Entry, mountinfoEngine *Engine, defaultSubvolID DefaultSubvolIDFunc) (bool, error) {
	if fstabEntry.IsSwap() || fstabEntry.IsPseudoFS() {
		return false, nil
	}
	if fstabEntry.Type == "btrfs" && !fstabEntry.HasOption("bind") && defaultSubvolID != nil {
		_, hasSubvol := fstabEntry.OptionValue("subvol")
		_, hasSubvolID := fstabEntry.OptionValue("subvolid")
		if !hasSubvol && !hasSubvolID {
			if _, err := defaultSubvolID(fstabEntry.Target); err != nil {
				return false, nil
			}
		}
	}

	expectedSource := fstabEntry.Source
	if mountinfoEngine.Cache != nil && expectedSource != "" {
		expectedSource = mountinfoEngine.Cache.Canonicalize(expectedSource)
	}
	expectedRoot, err := DeriveFSRoot(fstabEntry, mountinfoEngine, defaultSubvolID)
	if err != nil {
		return false, err
	}
	wantRoot := fstabEntry.HasOption("bind") || fstabEntry.Type == "none" || fstabEntry.Type == "btrfs"

	var expectedMajor, expectedMinor uint32
	var haveDevno bool
	if expectedSource != "" && mountinfoEngine.StatDevno != nil {
		if maj, min, ok := mountinfoEngine.StatDevno(expectedSource); ok {
			expectedMajor, expectedMinor, haveDevno = maj, min, true
		}
	}

	expectedOffset, haveOffset := "", false
	if off, ok := fstabEntry.OptionValue("offset"); ok {
		expectedOffset, haveOffset = off, true
	}

	for _, cand := range mountinfoEngine.Table.Entries() {
		if !sourceMatches(cand, expectedSource, expectedMajor, expectedMinor, haveDevno, expectedOffset, haveOffset) {
			continue
		}
		if wantRoot && cand.Root != expectedRoot {
			continue
		}
		if !targetMatches(mountinfoEngine, cand, fstabEntry.Target) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func sourceMatches(cand *entry.Entry, expectedSource string, expMajor, expMinor uint32, haveDevno bool, expectedOffset string, haveOffset bool) bool {
	if expectedSource != "" && cand.Source == expectedSource {
		return true
	}
	if haveDevno && cand.DevMajor == expMajor && cand.DevMinor == expMinor && (cand.DevMajor != 0 || cand.DevMinor != 0) {
		return true
	}
	if backing, loopOff, ok := linux.LoopBackingFile(cand.Source); ok && backing == expectedSource {
		if !haveOffset {
			return true
		}
		wantOff, err := strconv.ParseInt(expectedOffset, 10, 64)
		return err == nil && wantOff == loopOff
	}
	return false
}

func targetMatches(e *Engine, cand *entry.Entry, target string) bool {
	if cand.Target == target {
		return true
	}
	if e.Cache == nil {
		return false
	}
	return e.Cache.Canonicalize(cand.Target) == e.Cache.Canonicalize(target)
}
