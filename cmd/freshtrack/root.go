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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AleutianAI/AleutianFresh/pkg/logging"
	"github.com/AleutianAI/AleutianFresh/services/fresh/config"
	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/AleutianAI/AleutianFresh/services/fresh/storage/badger"
	"github.com/spf13/cobra"
)

// app is the state shared by every command, filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	jsonOutput bool

	cfg    config.Config
	logger *logging.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "freshtrack",
		Short: "Track which program symbols are stale",
		Long: `freshtrack replays evaluation units into a staleness graph and reports
which symbols were computed from values that have since changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Config file (default ~/.aleutian/fresh/freshtrack.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config file)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false,
		"Print reports as JSON")

	root.AddCommand(
		newReplayCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newSnapshotsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		level, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return err
		}
		cfg.Logging.Level = level
	}
	a.cfg = cfg

	lcfg := cfg.LoggerConfig()
	lcfg.Output = cmd.ErrOrStderr()
	a.logger = logging.New(lcfg)
	a.out = cmd.OutOrStdout()
	a.logger.Debug("configuration loaded", "path", path)
	return nil
}

// format returns the report format selected by --json or an explicit
// per-command --format.
func (a *app) format(explicit string) (report.Format, error) {
	if explicit != "" {
		return report.ParseFormat(explicit)
	}
	if a.jsonOutput {
		return report.FormatJSON, nil
	}
	return report.FormatText, nil
}

// sessionOptions returns the options every session gets from config.
func (a *app) sessionOptions(store session.SnapshotStore) []session.Option {
	opts := []session.Option{
		session.WithLogger(a.logger.Slog()),
		session.WithGraphOptions(graph.WithSameUnitExemption(a.cfg.Graph.SameUnitExemption)),
	}
	if store != nil {
		opts = append(opts, session.WithSnapshotStore(store))
	}
	return opts
}

// openStore opens the snapshot store when storage is enabled. The
// returned close func is never nil.
func (a *app) openStore(force bool) (*badger.SnapshotStore, func(), error) {
	if !a.cfg.Storage.Enabled && !force {
		return nil, func() {}, nil
	}
	bcfg := badger.DefaultConfig()
	bcfg.Path = a.cfg.Storage.Path
	bcfg.InMemory = a.cfg.Storage.InMemory
	bcfg.GCInterval = time.Duration(a.cfg.Storage.GCIntervalSeconds) * time.Second
	bcfg.Logger = a.logger.Slog()
	if bcfg.InMemory {
		bcfg.Path = ""
		bcfg.SyncWrites = false
	}

	db, err := badger.OpenDB(bcfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open snapshot store: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("snapshot store close failed", "error", err)
		}
	}
	return badger.NewSnapshotStore(db), closeFn, nil
}

// errExpectationsFailed is returned when a replayed script's expectations
// did not hold.
var errExpectationsFailed = errors.New("expectations failed")

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
