// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tagspec parses and formats the TAG=VALUE device-spec strings
// (LABEL=..., UUID=..., PARTUUID=...) that both probe results and
// mount-table tag lookups use.
package tagspec

import (
	"fmt"
	"strings"
)

// Tag is a parsed NAME=VALUE pair.
type Tag struct {
	Name  string
	Value string
}

// Parse applies a strict grammar: the tag name is a
// non-empty uppercase ASCII identifier ([A-Z][A-Z0-9_]*); the value
// may be double-quoted, in which case backslash only escapes inside
// the quotes (an unquoted value takes the remainder of the string
// literally, no escaping).
func Parse(spec string) (Tag, error) {
	eq := strings.IndexByte(spec, '=')
	if eq <= 0 {
		return Tag{}, fmt.Errorf("tagspec: invalid-argument: not a TAG=VALUE spec: %q", spec)
	}
	name := spec[:eq]
	if !validName(name) {
		return Tag{}, fmt.Errorf("tagspec: invalid-argument: invalid tag name: %q", name)
	}
	rawValue := spec[eq+1:]
	value, err := unquote(rawValue)
	if err != nil {
		return Tag{}, fmt.Errorf("tagspec: invalid-argument: %w", err)
	}
	return Tag{Name: name, Value: value}, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range []byte(name) {
		switch {
		case c >= 'A' && c <= 'Z':
		case c == '_' && i > 0:
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func unquote(raw string) (string, error) {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return raw, nil
	}
	inner := raw[1 : len(raw)-1]
	var sb strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c == '\\' {
			if i+1 >= len(inner) {
				return "", fmt.Errorf("dangling backslash in quoted value: %q", raw)
			}
			i++
			sb.WriteByte(inner[i])
			continue
		}
		if c == '"' {
			return "", fmt.Errorf("unescaped quote inside quoted value: %q", raw)
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

// String formats a Tag back to NAME=VALUE form, quoting the value
// (with backslash-escaping) when it contains whitespace or a quote.
func (t Tag) String() string {
	if !needsQuoting(t.Value) {
		return t.Name + "=" + t.Value
	}
	var sb strings.Builder
	sb.WriteString(t.Name)
	sb.WriteString(`="`)
	for i := 0; i < len(t.Value); i++ {
		c := t.Value[i]
		if c == '"' || c == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

func needsQuoting(v string) bool {
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case ' ', '\t', '"', '\\':
			return true
		}
	}
	return false
}

// IsTagSpec reports whether spec parses as a valid TAG=VALUE spec.
func IsTagSpec(spec string) bool {
	_, err := Parse(spec)
	return err == nil
}
