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
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianFresh/services/fresh/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		format   string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch SCRIPT...",
		Short: "Replay scripts again whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.format(format)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			replay := func(ctx context.Context, paths []string) {
				runs, err := a.replayAll(ctx, paths, len(paths))
				if err != nil {
					a.logger.Error("replay failed", "error", err)
					fmt.Fprintf(a.out, "replay failed: %v\n", err)
					return
				}
				if err := printResults(a.out, runs, f); err != nil && !errors.Is(err, errExpectationsFailed) {
					a.logger.Error("print failed", "error", err)
				}
			}

			replay(ctx, args)

			w, err := watch.New(args, func(ctx context.Context, changes []watch.Change) {
				var paths []string
				for _, c := range changes {
					if c.Op == watch.OpRemove {
						a.logger.Warn("script removed", "path", c.Path)
						continue
					}
					paths = append(paths, c.Path)
				}
				if len(paths) > 0 {
					replay(ctx, paths)
				}
			}, watch.Options{Debounce: debounce, Logger: a.logger.Slog()})
			if err != nil {
				return err
			}
			defer w.Stop()
			if err := w.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("watching scripts", "count", len(args))
			w.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: text, json or yaml")
	cmd.Flags().DurationVar(&debounce, "debounce", 100*time.Millisecond, "Quiet period before replaying")
	return cmd
}
