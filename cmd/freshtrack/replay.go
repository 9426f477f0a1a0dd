// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/AleutianAI/AleutianFresh/pkg/ux"
	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/AleutianAI/AleutianFresh/services/fresh/script"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// replayed is one script replayed into its own session.
type replayed struct {
	script  *script.Script
	session *session.Session
	result  *script.Result
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		format   string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "replay SCRIPT...",
		Short: "Replay session scripts and report every symbol",
		Long: `Replays each script into its own session and prints the final report.
Exits non-zero when an expectation in any script does not hold.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.format(format)
			if err != nil {
				return err
			}
			runs, err := a.replayAll(commandContext(cmd), args, parallel)
			if err != nil {
				return err
			}
			return printResults(a.out, runs, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: text, json or yaml")
	cmd.Flags().IntVar(&parallel, "parallel", runtime.NumCPU(), "Scripts replayed at once")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		format      string
		failOnStale bool
	)
	cmd := &cobra.Command{
		Use:   "check SCRIPT",
		Short: "Replay a script and print only the stale symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.format(format)
			if err != nil {
				return err
			}
			runs, err := a.replayAll(commandContext(cmd), args, 1)
			if err != nil {
				return err
			}
			stale := runs[0].session.StaleReport()
			if err := report.Render(a.out, stale, f); err != nil {
				return err
			}
			if failOnStale && stale.StaleCount > 0 {
				return fmt.Errorf("%d stale symbols", stale.StaleCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&failOnStale, "fail-on-stale", false, "Exit non-zero when any symbol is stale")
	return cmd
}

// replayAll replays every script concurrently, each into a session of its
// own. Results keep the order of paths.
func (a *app) replayAll(ctx context.Context, paths []string, parallel int) ([]*replayed, error) {
	store, closeStore, err := a.openStore(false)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	var snapshots session.SnapshotStore
	if store != nil {
		snapshots = store
	}
	sessOpts := a.sessionOptions(snapshots)

	runs := make([]*replayed, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, path := range paths {
		g.Go(func() error {
			run, err := a.replayOne(ctx, path, sessOpts)
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (a *app) replayOne(ctx context.Context, path string, sessOpts []session.Option) (*replayed, error) {
	s, err := script.Load(path)
	if err != nil {
		return nil, err
	}
	id := sessionID(s.Name)
	opts := append(append([]session.Option{}, sessOpts...), s.SessionOptions()...)
	sess := session.New(id, opts...)

	a.logger.Info("replaying script", "script", s.Name, "path", path, "session_id", id, "units", len(s.Units))
	res, err := script.Run(ctx, s, sess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !res.OK() {
		a.logger.Warn("expectations failed", "script", s.Name, "failures", len(res.Failures))
	}
	return &replayed{script: s, session: sess, result: res}, nil
}

// sessionID names a replay session after its script. Snapshot keys
// cannot hold '/'.
func sessionID(name string) string {
	name = strings.NewReplacer("/", "-", " ", "-").Replace(name)
	return name + "-" + uuid.NewString()[:8]
}

func printResults(w io.Writer, runs []*replayed, f report.Format) error {
	results := make([]*script.Result, len(runs))
	failed := 0
	for i, run := range runs {
		results[i] = run.result
		if !run.result.OK() {
			failed++
		}
	}

	switch f {
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	case report.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		st := ux.NewStyles(w)
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, st.Title.Render("== "+res.Script))
			if err := report.Render(w, res.Report, report.FormatText); err != nil {
				return err
			}
			for _, fail := range res.Failures {
				fmt.Fprintf(w, "%s %s\n", st.Error.Render("FAIL"), fail)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d scripts", errExpectationsFailed, failed, len(runs))
	}
	return nil
}
