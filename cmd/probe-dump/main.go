// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command probe-dump drives a Prober to completion over one or more
// devices or image files and prints the resulting value lists.  It
// exists to give the CLI/logging stack (cobra, pflag,
// ocibuild/cliutil, dlog) a home as a thin exercising harness over
// lib/probe/prober; the real blkid front-end remains out of scope.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lukeshu/blkid-go/lib/blkidcfg"
	"github.com/lukeshu/blkid-go/lib/probe/chain"
	"github.com/lukeshu/blkid-go/lib/probe/diskio"
	"github.com/lukeshu/blkid-go/lib/probe/prober"
	"github.com/lukeshu/blkid-go/lib/probe/valuelist"
	"github.com/lukeshu/blkid-go/lib/textui"
)

type logLevelFlag struct {
	logrus.Level
}

func (lvl *logLevelFlag) Type() string { return "loglevel" }
func (lvl *logLevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

var _ pflag.Value = (*logLevelFlag)(nil)

// Exit codes follow the historical blkid convention: 0 success, 2
// nothing found, 4 usage/other errors, 8 ambivalent low-level result.
const (
	exitNotFound   = 2
	exitError      = 4
	exitAmbivalent = 8
)

type scanStats struct {
	scanned textui.Portion[int]
	mem     *textui.LiveMemUse
}

func (s scanStats) String() string {
	return textui.Sprintf("scanned %v devices (mem: %v)", s.scanned, s.mem)
}

func main() {
	logLevelFlag := logLevelFlag{Level: logrus.InfoLevel}
	var wantPartitions, wantTopology, wipe, dryRun, safe bool

	cmd := &cobra.Command{
		Use:   "probe-dump [flags] DEVICE...",
		Short: "probe devices or image files and print their signature value lists",
		Args:  cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			logger.SetLevel(logLevelFlag.Level)
			ctx := dlog.WithLogger(cmd.Context(), dlog.WrapLogrus(logger))
			return run(ctx, args, wantPartitions, wantTopology, wipe, dryRun, safe)
		},
	}
	cmd.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	cmd.SetHelpTemplate(cliutil.HelpTemplate)
	cmd.Flags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	cmd.Flags().BoolVar(&wantPartitions, "partitions", false, "enable the partition-table chain")
	cmd.Flags().BoolVar(&wantTopology, "topology", false, "enable the topology chain")
	cmd.Flags().BoolVar(&safe, "safe", false, "use DoSafeprobe instead of the DoProbe iteration loop")
	cmd.Flags().BoolVar(&wipe, "wipe", false, "wipe the winning signature's magic bytes after probing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "with --wipe, report what would be wiped without writing")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "probe-dump:", err)
		if errors.Is(err, chain.ErrAmbivalent) {
			os.Exit(exitAmbivalent)
		}
		os.Exit(exitError)
	}
}

func run(ctx context.Context, devices []string, wantPartitions, wantTopology, wipe, dryRun, safe bool) error {
	cfg, err := blkidcfg.ReadDefault()
	if err != nil {
		return err
	}

	var resultsMu sync.Mutex
	results := make(map[string][]*valuelist.Value, len(devices))

	progress := textui.NewProgress[scanStats](ctx, dlog.LogLevelInfo, 1*time.Second)
	stats := scanStats{mem: new(textui.LiveMemUse)}
	stats.scanned.D = len(devices)
	progress.Set(stats)

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
	})
	for _, device := range devices {
		device := device
		grp.Go(device, func(ctx context.Context) error {
			ctx = dlog.WithField(ctx, "probe.scandevices.dev", device)
			values, err := probeOne(ctx, cfg, device, wantPartitions, wantTopology, wipe, dryRun, safe)
			if err != nil {
				return err
			}
			resultsMu.Lock()
			results[device] = values
			stats.scanned.N++
			progress.Set(stats)
			resultsMu.Unlock()
			return nil
		})
	}
	err = grp.Wait()
	progress.Done()
	if err != nil {
		return err
	}

	anyFound := false
	sorted := append([]string(nil), devices...)
	sort.Strings(sorted)
	for _, device := range sorted {
		for _, v := range results[device] {
			anyFound = true
			if len(devices) > 1 {
				fmt.Printf("%s: %s=%s\n", device, v.Name, v.String())
			} else {
				fmt.Printf("%s=%s\n", v.Name, v.String())
			}
		}
	}
	if !anyFound {
		dlog.Infof(ctx, "no signature found")
		os.Exit(exitNotFound)
	}
	return nil
}

func probeOne(ctx context.Context, cfg *blkidcfg.Config, device string, wantPartitions, wantTopology, wipe, dryRun, safe bool) ([]*valuelist.Value, error) {
	flag := os.O_RDONLY
	if wipe && !dryRun {
		flag = os.O_RDWR
	}

	f, err := diskio.OpenFile(device, flag, 0)
	if err != nil {
		return nil, err
	}
	p := prober.New(f, true)
	defer p.Close()

	p.ApplyConfig(cfg)
	p.EnablePartitions(wantPartitions)
	p.EnableTopology(wantTopology)

	if safe {
		if err := p.DoSafeprobe(); err != nil {
			if errors.Is(err, prober.ErrDone) {
				return nil, nil
			}
			return nil, err
		}
	} else {
		for {
			status, err := p.DoProbe()
			if err != nil {
				return nil, err
			}
			if status == prober.StatusDone {
				break
			}
		}
	}
	dlog.Debugf(ctx, "dev[%q] probe finished with %d values", device, p.NumValues())

	values := p.Values().All()
	if wipe && p.NumValues() > 0 {
		if err := p.DoWipe(dryRun); err != nil {
			return nil, fmt.Errorf("wipe %s: %w", device, err)
		}
	}
	return values, nil
}
