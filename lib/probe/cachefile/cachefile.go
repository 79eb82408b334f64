// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cachefile implements the historical tab-format cache file:
// one line per device, `<DEVICE> TAG=VALUE ...` with DEVNO=, TIME=,
// and PRI= mandatory fields, plus garbage collection of entries whose
// device no longer exists. DEVNO, TIME and PRI values are always
// quoted; other values only when they contain whitespace, a quote or
// a backslash.
package cachefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
)

// Entry is one device's cached probe result.
type Entry struct {
	Device   string
	Tags     []tagspec.Tag
	DevMajor uint32
	DevMinor uint32
	Time     float64 // unix seconds.fractional
	Priority int
}

// Get returns the value of the named tag, if present.
func (e *Entry) Get(name string) (string, bool) {
	for _, t := range e.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// Write serializes entries in the historical tab format, one line
// per entry.
func Write(w io.Writer, entries []*Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s", e.Device); err != nil {
			return err
		}
		for _, t := range e.Tags {
			if _, err := fmt.Fprintf(bw, " %s", t.String()); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, " DEVNO=\"%04x:%04x\" TIME=\"%s\" PRI=\"%d\"\n",
			e.DevMajor, e.DevMinor, strconv.FormatFloat(e.Time, 'f', -1, 64), e.Priority); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile atomically rewrites path with the serialized entries: the
// new content lands in a temp file in the same directory, which is
// renamed over path only once fully written.  A reader never sees a
// half-written cache.
func WriteFile(path string, entries []*Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, entries); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Parse reads the historical tab format back into entries. Per
// the library-wide parse-error policy, a caller-installed errFn is
// invoked for each malformed line and parsing continues (pass nil to
// silently skip malformed lines, matching the "every parse error is
// recoverable" default).
func Parse(r io.Reader, errFn func(lineno int, line string, err error)) ([]*Entry, error) {
	var entries []*Entry
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitQuotedFields(line)
		if len(fields) < 1 {
			continue
		}
		e := &Entry{Device: fields[0]}
		var parseErr error
		for _, f := range fields[1:] {
			tag, err := tagspec.Parse(f)
			if err != nil {
				parseErr = err
				continue
			}
			switch tag.Name {
			case "DEVNO":
				maj, min, err := parseDevno(tag.Value)
				if err != nil {
					parseErr = err
					continue
				}
				e.DevMajor, e.DevMinor = maj, min
			case "TIME":
				t, err := strconv.ParseFloat(tag.Value, 64)
				if err != nil {
					parseErr = err
					continue
				}
				e.Time = t
			case "PRI":
				p, err := strconv.Atoi(tag.Value)
				if err != nil {
					parseErr = err
					continue
				}
				e.Priority = p
			default:
				e.Tags = append(e.Tags, tag)
			}
		}
		if parseErr != nil && errFn != nil {
			errFn(lineno, line, parseErr)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

func parseDevno(s string) (uint32, uint32, error) {
	maj, min, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("cachefile: invalid DEVNO %q", s)
	}
	majV, err := strconv.ParseUint(maj, 16, 32)
	if err != nil {
		return 0, 0, err
	}
	minV, err := strconv.ParseUint(min, 16, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(majV), uint32(minV), nil
}

func splitQuotedFields(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return fields
}

// StatFunc reports whether device still exists on the system.
type StatFunc func(device string) bool

// GC drops entries whose device no longer exists.  It returns the
// surviving entries and whether anything was dropped (the table's
// changed-flag).
func GC(entries []*Entry, stat StatFunc) ([]*Entry, bool) {
	if stat == nil {
		stat = func(device string) bool {
			_, err := os.Stat(device)
			return err == nil
		}
	}
	kept := make([]*Entry, 0, len(entries))
	changed := false
	for _, e := range entries {
		if stat(e.Device) {
			kept = append(kept, e)
		} else {
			changed = true
		}
	}
	return kept, changed
}
