// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the freshtrack API version.
const ServiceVersion = "0.1.0"

// Handlers serves the session API.
type Handlers struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewHandlers creates handlers over mgr. A nil logger discards.
func NewHandlers(mgr *session.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{sessions: mgr, logger: logger}
}

// HandleCreateSession handles POST /v1/fresh/sessions.
//
// Response:
//
//	201 Created: CreateSessionResponse
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateSession")

	s, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: s.ID()})
}

// HandleListSessions handles GET /v1/fresh/sessions.
func (h *Handlers) HandleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, ListSessionsResponse{Sessions: h.sessions.IDs()})
}

// HandleDeleteSession handles DELETE /v1/fresh/sessions/:id.
//
// Response:
//
//	204 No Content
//	404 Not Found: unknown session
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteSession")

	if err := h.sessions.Delete(c.Param("id")); err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRunUnit handles POST /v1/fresh/sessions/:id/units.
//
// Description:
//
//	Applies the unit in the body as the session's next evaluation unit.
//	A unit that fails midway keeps the ops before the failure applied;
//	the error response then carries the partial result.
//
// Request Body:
//
//	session.Unit
//
// Response:
//
//	200 OK: session.UnitResult
//	400 Bad Request: malformed unit, op or path
//	404 Not Found: unknown session or symbol
//	409 Conflict: the session graph is corrupt
func (h *Handlers) HandleRunUnit(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRunUnit")

	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}

	var unit session.Unit
	if err := c.ShouldBindJSON(&unit); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	res, err := s.RunUnit(c.Request.Context(), unit)
	if err != nil {
		h.fail(c, logger, err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleSymbol handles GET /v1/fresh/sessions/:id/symbols?path=d[foo].
//
// Response:
//
//	200 OK: SymbolResponse
//	400 Bad Request: missing or malformed path
//	404 Not Found: unknown session or symbol
func (h *Handlers) HandleSymbol(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSymbol")

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path query parameter is required",
			Code:  "MISSING_PATH",
		})
		return
	}
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	entry, err := s.Symbol(path)
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	reasons := entry.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	c.JSON(http.StatusOK, SymbolResponse{
		Path:       path,
		Stale:      entry.Stale,
		Reasons:    reasons,
		Kind:       entry.Kind,
		Identity:   entry.Identity,
		Aliases:    entry.Aliases,
		Parents:    entry.Parents,
		DefinedAt:  entry.DefinedAt,
		RequiredAt: entry.RequiredAt,
	})
}

// HandleStale handles GET /v1/fresh/sessions/:id/stale.
//
// Query Parameters:
//
//	all - "true" reports fresh symbols too
//
// Response:
//
//	200 OK: report.Report
func (h *Handlers) HandleStale(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStale")

	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	if c.Query("all") == "true" {
		c.JSON(http.StatusOK, s.Snapshot())
		return
	}
	c.JSON(http.StatusOK, s.StaleReport())
}

// HandlePrecheck handles POST /v1/fresh/sessions/:id/precheck.
//
// Description:
//
//	Checks the units in the body against the current graph without
//	running them.
//
// Request Body:
//
//	PrecheckRequest
//
// Response:
//
//	200 OK: session.MultiPrecheck
func (h *Handlers) HandlePrecheck(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePrecheck")

	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}

	var req PrecheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	res, err := s.MultiUnitPrecheck(req.Units)
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleRebuild handles POST /v1/fresh/sessions/:id/rebuild, which discards
// the session graph. It is how a client recovers a corrupt session.
func (h *Handlers) HandleRebuild(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRebuild")

	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, logger, err, nil)
		return
	}
	s.Rebuild()
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/fresh/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Sessions: len(h.sessions.IDs()),
	})
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

// fail writes the error response for err, including res when a unit
// failed after applying some of its ops.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error, res *session.UnitResult) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code, Result: res})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, session.ErrUnknownSymbol):
		return http.StatusNotFound, "UNKNOWN_SYMBOL"
	case errors.Is(err, session.ErrUnknownContainer):
		return http.StatusNotFound, "UNKNOWN_CONTAINER"
	case errors.Is(err, session.ErrBadPath):
		return http.StatusBadRequest, "BAD_PATH"
	case errors.Is(err, session.ErrUnknownOp):
		return http.StatusBadRequest, "UNKNOWN_OP"
	case errors.Is(err, session.ErrInvalidOp):
		return http.StatusBadRequest, "INVALID_OP"
	case errors.Is(err, session.ErrCorrupt):
		return http.StatusConflict, "SESSION_CORRUPT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

const requestIDKey = "request_id"

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDKey, requestID)
	c.Header("X-Request-ID", requestID)
	return requestID
}
