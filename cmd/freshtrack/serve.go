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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianFresh/services/fresh/api"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/AleutianAI/AleutianFresh/services/fresh/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides the config file)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	tcfg := a.cfg.Telemetry
	tcfg.ServiceName = a.cfg.Logging.Service
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer closeStore()
	var snapshots session.SnapshotStore
	if store != nil {
		snapshots = store
	}

	srv := a.newServer(session.NewManager(a.sessionOptions(snapshots)...))

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("freshtrack API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newServer builds the HTTP server for mgr without starting it.
func (a *app) newServer(mgr *session.Manager) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	handlers := api.NewHandlers(mgr, a.logger.Slog())
	router := api.NewRouter(handlers, api.RouterConfig{
		ServiceName: a.cfg.Logging.Service,
		Metrics:     telemetry.MetricsHandler(),
		Logger:      a.logger.Slog(),
	})
	return &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
