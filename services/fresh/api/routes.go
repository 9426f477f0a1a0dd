// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves freshtrack sessions over HTTP.
//
// Routes:
//
//	POST   /v1/fresh/sessions              - Create a session
//	GET    /v1/fresh/sessions              - List session IDs
//	DELETE /v1/fresh/sessions/:id          - Drop a session
//	POST   /v1/fresh/sessions/:id/units    - Run an evaluation unit
//	GET    /v1/fresh/sessions/:id/symbols  - Staleness of one symbol (?path=)
//	GET    /v1/fresh/sessions/:id/stale    - Report of stale symbols (?all=true)
//	POST   /v1/fresh/sessions/:id/precheck - Multi-unit precheck
//	POST   /v1/fresh/sessions/:id/rebuild  - Discard the session graph
//	GET    /v1/fresh/health                - Health check
//	GET    /metrics                        - Prometheus metrics, when active
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the session routes under rg.
//
// Example:
//
//	router := gin.New()
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	fresh := rg.Group("/fresh")
	{
		fresh.GET("/health", handlers.HandleHealth)

		sessions := fresh.Group("/sessions")
		{
			sessions.POST("", handlers.HandleCreateSession)
			sessions.GET("", handlers.HandleListSessions)
			sessions.DELETE("/:id", handlers.HandleDeleteSession)
			sessions.POST("/:id/units", handlers.HandleRunUnit)
			sessions.GET("/:id/symbols", handlers.HandleSymbol)
			sessions.GET("/:id/stale", handlers.HandleStale)
			sessions.POST("/:id/precheck", handlers.HandlePrecheck)
			sessions.POST("/:id/rebuild", handlers.HandleRebuild)
		}
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the server spans.
	ServiceName string

	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler

	Logger *slog.Logger
}

// NewRouter builds the gin engine with recovery, tracing and request
// logging middleware and every route registered.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "freshtrack"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(requestLog(cfg.Logger))

	RegisterRoutes(router.Group("/v1"), handlers)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return router
}

func requestLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := getOrCreateRequestID(c)
		c.Next()
		logger.Debug("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
