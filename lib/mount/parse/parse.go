// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package parse implements the two mount-table text dialects:
// fstab/mtab (six whitespace-separated columns with
// octal-escape decoding of spaces and backslashes) and mountinfo (the
// kernel's /proc/self/mountinfo format, space-separated with a "-"
// delimiter between mountinfo-specific fields and the trailing
// super-options).  Each parser produces entry.Entry values and adds
// them to a caller-supplied table.Table through Table.Add.
//
// The scanning-loop shape (bufio.Scanner, field-by-field split, a
// best-effort continue on a malformed line) is grounded on
// dell-gofsutil's readProcMounts (gofsutil_mount_linux.go /
// gofsutil_mount_unix.go), which parses this same pair of files into
// a similar flat Info struct.
package parse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lukeshu/blkid-go/lib/mount/entry"
	"github.com/lukeshu/blkid-go/lib/mount/table"
)

func reportErr(t *table.Table, lineno int, line string, err error) {
	if t.ErrFn != nil {
		t.ErrFn(lineno, line, err)
	}
}

// UnescapeOctal decodes the \NNN octal escapes fstab/mtab use to
// embed spaces, tabs, newlines, and literal backslashes inside the
// whitespace-delimited source/target/opts columns.
func UnescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// EscapeOctal is UnescapeOctal's inverse, used when serializing a
// table back to fstab/mtab form: spaces, tabs, newlines, and literal
// backslashes are replaced with their \NNN octal escape.
func EscapeOctal(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\\':
			fmt.Fprintf(&sb, `\%03o`, s[i])
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// Fstab parses an fstab/mtab-dialect file from r, adding every entry
// it recognizes to t. Malformed lines are reported through t.ErrFn
// and skipped; every parse error is recoverable by default.
func Fstab(r io.Reader, t *table.Table) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	var pendingComment strings.Builder
	for scanner.Scan() {
		lineno++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if pendingComment.Len() > 0 {
				pendingComment.WriteByte('\n')
			}
			pendingComment.WriteString(line)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			reportErr(t, lineno, raw, fmt.Errorf("parse: fstab: expected at least 4 fields, got %d", len(fields)))
			continue
		}
		source := UnescapeOctal(fields[0])
		if source == "none" {
			source = ""
		}
		target := UnescapeOctal(fields[1])
		fstype := fields[2]
		opts := ""
		if len(fields) > 3 {
			opts = UnescapeOctal(fields[3])
		}
		e := entry.New(source, target, fstype, "", opts)
		if len(fields) > 4 {
			if freq, err := strconv.Atoi(fields[4]); err == nil {
				e.Freq = freq
			}
		}
		if len(fields) > 5 {
			if passno, err := strconv.Atoi(fields[5]); err == nil {
				e.Passno = passno
			}
		}
		if t.Comments && pendingComment.Len() > 0 {
			e.Comment = pendingComment.String()
			pendingComment.Reset()
		}
		t.Add(e)
	}
	if t.Comments && pendingComment.Len() > 0 {
		t.TailComment = pendingComment.String()
	}
	return scanner.Err()
}

// Mountinfo parses /proc/self/mountinfo-dialect text from r.  Each
// line is:
//
//	id parent major:minor root mountpoint options - fstype source super-opts
//
// with zero or more additional "optional fields" appearing between
// options and the "-" delimiter.
func Mountinfo(r io.Reader, t *table.Table) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		dashIdx := -1
		for i, f := range fields {
			if f == "-" {
				dashIdx = i
				break
			}
		}
		if dashIdx < 0 || dashIdx < 6 || len(fields) < dashIdx+4 {
			reportErr(t, lineno, raw, fmt.Errorf("parse: mountinfo: missing \"-\" separator or too few fields"))
			continue
		}

		mountID, err := strconv.Atoi(fields[0])
		if err != nil {
			reportErr(t, lineno, raw, fmt.Errorf("parse: mountinfo: bad mount id: %w", err))
			continue
		}
		parentID, err := strconv.Atoi(fields[1])
		if err != nil {
			reportErr(t, lineno, raw, fmt.Errorf("parse: mountinfo: bad parent id: %w", err))
			continue
		}
		major, minor, err := splitDevno(fields[2])
		if err != nil {
			reportErr(t, lineno, raw, err)
			continue
		}
		root := UnescapeOctal(fields[3])
		mountpoint := UnescapeOctal(fields[4])
		vfsOpts := fields[5]
		optionalFields := strings.Join(fields[6:dashIdx], " ")
		fstype := fields[dashIdx+1]
		source := UnescapeOctal(fields[dashIdx+2])
		superOpts := strings.Join(fields[dashIdx+3:], " ")

		e := entry.New(source, mountpoint, fstype, vfsOpts, superOpts)
		e.MountID = mountID
		e.ParentID = parentID
		e.DevMajor = major
		e.DevMinor = minor
		e.Root = root
		e.OptionalFields = optionalFields
		t.Add(e)
	}
	return scanner.Err()
}

func splitDevno(s string) (major, minor uint32, err error) {
	majS, minS, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("parse: mountinfo: bad major:minor %q", s)
	}
	majV, err := strconv.ParseUint(majS, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse: mountinfo: bad major in %q: %w", s, err)
	}
	minV, err := strconv.ParseUint(minS, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse: mountinfo: bad minor in %q: %w", s, err)
	}
	return uint32(majV), uint32(minV), nil
}
