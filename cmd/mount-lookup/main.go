// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command mount-lookup parses a mount-table file and runs one lookup
// against it. It exists to give the CLI/logging stack a home as a
// thin exercising harness over lib/mount/lookup; the real findmnt
// front-end remains out of scope.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"github.com/lukeshu/blkid-go/lib/mount/lookup"
	"github.com/lukeshu/blkid-go/lib/mount/parse"
	"github.com/lukeshu/blkid-go/lib/mount/pathcache"
	"github.com/lukeshu/blkid-go/lib/mount/table"
	"github.com/lukeshu/blkid-go/lib/probe/tagspec"
	"github.com/lukeshu/blkid-go/lib/textui"
)

func main() {
	logLevelFlag := textui.LogLevelFlag{Level: dlog.LogLevelInfo}
	var dialect string
	var backward bool

	cmd := &cobra.Command{
		Use:   "mount-lookup [flags] FILE QUERY ARGS...",
		Short: "parse a mount-table file and run one lookup query against it",
		Long: `QUERY is one of:
  target MOUNTPOINT
  source SPEC
  mountpoint PATH
  pair SOURCE TARGET
  devno MAJOR:MINOR
  tag TAG=VALUE`,
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(2)),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := dlog.WithLogger(cmd.Context(), textui.NewLogger(os.Stderr, logLevelFlag.Level))
			return run(ctx, dialect, backward, args[0], args[1], args[2:])
		},
	}
	cmd.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	cmd.SetHelpTemplate(cliutil.HelpTemplate)
	cmd.Flags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	cmd.Flags().StringVar(&dialect, "dialect", "fstab", "table file dialect: fstab, mtab, or mountinfo")
	cmd.Flags().BoolVar(&backward, "backward", true, "search in reverse-insertion (most-recent-first) order")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mount-lookup:", err)
		os.Exit(4)
	}
}

func run(ctx context.Context, dialect string, backward bool, path, query string, queryArgs []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	t := table.New()
	t.Cache = pathcache.New()
	t.ErrFn = func(lineno int, line string, err error) {
		dlog.Warnf(ctx, "%s:%d: %v", path, lineno, err)
	}
	switch dialect {
	case "fstab", "mtab":
		err = parse.Fstab(f, t)
	case "mountinfo":
		err = parse.Mountinfo(f, t)
	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		return err
	}
	dlog.Debugf(ctx, "parsed %d entries from %s", t.NumEntries(), path)

	eng := lookup.New(t)
	dir := lookup.Forward
	if backward {
		dir = lookup.Backward
	}

	var found bool
	var result string
	switch query {
	case "target":
		if len(queryArgs) != 1 {
			return fmt.Errorf("target: expected 1 argument, got %d", len(queryArgs))
		}
		e, err := eng.FindTarget(queryArgs[0], dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	case "source":
		if len(queryArgs) != 1 {
			return fmt.Errorf("source: expected 1 argument, got %d", len(queryArgs))
		}
		e, err := eng.FindSource(queryArgs[0], dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	case "mountpoint":
		if len(queryArgs) != 1 {
			return fmt.Errorf("mountpoint: expected 1 argument, got %d", len(queryArgs))
		}
		e, err := eng.FindMountpoint(queryArgs[0], dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	case "pair":
		if len(queryArgs) != 2 {
			return fmt.Errorf("pair: expected 2 arguments, got %d", len(queryArgs))
		}
		e, err := eng.FindPair(queryArgs[0], queryArgs[1], dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	case "devno":
		if len(queryArgs) != 1 {
			return fmt.Errorf("devno: expected 1 argument MAJOR:MINOR, got %d", len(queryArgs))
		}
		maj, min, err := splitDevno(queryArgs[0])
		if err != nil {
			return err
		}
		devno := uint64(maj)<<32 | uint64(min)
		e, err := eng.FindDevno(devno, dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	case "tag":
		if len(queryArgs) != 1 {
			return fmt.Errorf("tag: expected 1 argument TAG=VALUE, got %d", len(queryArgs))
		}
		tag, err := tagspec.Parse(queryArgs[0])
		if err != nil {
			return err
		}
		e, err := eng.FindTag(tag, dir)
		found = err == nil
		if found {
			result = e.Source + " " + e.Target + " " + e.Type
		}
	default:
		return fmt.Errorf("unknown query %q", query)
	}

	if !found {
		fmt.Println("not found")
		os.Exit(2)
	}
	fmt.Println(result)
	return nil
}

func splitDevno(s string) (uint32, uint32, error) {
	majS, minS, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad MAJOR:MINOR %q", s)
	}
	maj, err := strconv.ParseUint(majS, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	min, err := strconv.ParseUint(minS, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(maj), uint32(min), nil
}
