// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package blkidcfg holds the parsed configuration snapshot
// (CACHE_FILE=, EVALUATE=, SEND_UEVENT=, PROBE_OFF=) plus the
// BLKID_FILE, BLKID_CONF, and BLKID_DEBUG environment overrides.
// The config-file reader is a trivial key=value parser; the snapshot
// it produces is immutable -- re-reading produces a new Config
// rather than mutating one in place.
package blkidcfg

import (
	"bufio"
	"os"
	"strings"
)

// EvaluateMethod is one entry of the EVALUATE= csv list.
type EvaluateMethod string

const (
	EvaluateUdev EvaluateMethod = "udev"
	EvaluateScan EvaluateMethod = "scan"
)

// Config is an immutable configuration snapshot.
type Config struct {
	CacheFile  string
	Evaluate   []EvaluateMethod
	SendUevent bool
	ProbeOff   []string
}

// Default returns the conventional default snapshot: the historical
// cache path, udev-then-scan evaluation, uevent sending enabled, and
// no descriptors disabled.
func Default() *Config {
	return &Config{
		CacheFile:  "/run/blkid/blkid.tab",
		Evaluate:   []EvaluateMethod{EvaluateUdev, EvaluateScan},
		SendUevent: true,
	}
}

// Read parses a config file in the trivial key=value format and
// returns a new snapshot layered over Default()'s
// fields (a key absent from the file keeps its default). Unknown keys
// and blank/comment lines are ignored, matching the config reader's
// out-of-CORE, permissive nature.
func Read(r *os.File) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "CACHE_FILE":
			cfg.CacheFile = value
		case "EVALUATE":
			cfg.Evaluate = nil
			for _, m := range strings.Split(value, ",") {
				m = strings.TrimSpace(m)
				if m != "" {
					cfg.Evaluate = append(cfg.Evaluate, EvaluateMethod(m))
				}
			}
		case "SEND_UEVENT":
			cfg.SendUevent = strings.EqualFold(value, "yes")
		case "PROBE_OFF":
			cfg.ProbeOff = nil
			for _, name := range strings.Split(value, ",") {
				name = strings.TrimSpace(name)
				if name != "" {
					cfg.ProbeOff = append(cfg.ProbeOff, name)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// ReadDefault resolves BLKID_CONF (falling back to the conventional
// /etc/blkid.conf) and parses it, returning Default() unmodified if
// the file does not exist.
func ReadDefault() (*Config, error) {
	path := os.Getenv("BLKID_CONF")
	if path == "" {
		path = "/etc/blkid.conf"
	}
	cfg, err := ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// CacheFilePath resolves the cache file location: the BLKID_FILE
// environment override takes precedence over the config snapshot's
// CacheFile.
func CacheFilePath(cfg *Config) string {
	if path := os.Getenv("BLKID_FILE"); path != "" {
		return path
	}
	return cfg.CacheFile
}

// DebugEnabled reports whether the BLKID_DEBUG environment variable
// requests debug output.
func DebugEnabled() bool {
	v := os.Getenv("BLKID_DEBUG")
	return v != "" && v != "0" && !strings.EqualFold(v, "no")
}
