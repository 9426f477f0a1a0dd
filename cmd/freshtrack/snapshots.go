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
	"fmt"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/spf13/cobra"
)

func newSnapshotsCmd(a *app) *cobra.Command {
	var (
		format string
		at     int64
		latest bool
		del    bool
	)
	cmd := &cobra.Command{
		Use:   "snapshots [SESSION_ID]",
		Short: "List or show persisted session snapshots",
		Long: `Without arguments, lists every session with snapshots. With a session ID,
lists the unit timestamps of its snapshots, or prints one with --at or
--latest. --delete removes every snapshot of the session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.format(format)
			if err != nil {
				return err
			}
			store, closeStore, err := a.openStore(true)
			if err != nil {
				return err
			}
			defer closeStore()
			ctx := commandContext(cmd)

			if len(args) == 0 {
				ids, err := store.Sessions(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(a.out, id)
				}
				return nil
			}

			id := args[0]
			switch {
			case del:
				n, err := store.DeleteSession(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "deleted %d snapshots of %s\n", n, id)
				return nil
			case latest:
				snap, err := store.Latest(ctx, id)
				if err != nil {
					return err
				}
				return report.Render(a.out, snap, f)
			case cmd.Flags().Changed("at"):
				snap, err := store.Load(ctx, id, at)
				if err != nil {
					return err
				}
				return report.Render(a.out, snap, f)
			}

			timestamps, err := store.List(ctx, id)
			if err != nil {
				return err
			}
			if len(timestamps) == 0 {
				return fmt.Errorf("no snapshots for session %s", id)
			}
			for _, ts := range timestamps {
				fmt.Fprintln(a.out, ts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: text, json or yaml")
	cmd.Flags().Int64Var(&at, "at", 0, "Print the snapshot taken at this unit timestamp")
	cmd.Flags().BoolVar(&latest, "latest", false, "Print the most recent snapshot")
	cmd.Flags().BoolVar(&del, "delete", false, "Delete every snapshot of the session")
	cmd.MarkFlagsMutuallyExclusive("at", "latest", "delete")
	return cmd
}
