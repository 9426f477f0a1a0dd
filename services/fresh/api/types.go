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
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
)

// CreateSessionResponse is returned by POST /v1/fresh/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ListSessionsResponse is returned by GET /v1/fresh/sessions.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

// SymbolResponse is returned by GET /v1/fresh/sessions/:id/symbols.
type SymbolResponse struct {
	Path string `json:"path"`

	// Stale is true when the symbol has a fresher ancestor or a stale
	// namespace member.
	Stale bool `json:"stale"`

	// Reasons are the readable names of the symbols that made it stale.
	Reasons []string `json:"reasons"`

	Kind     string   `json:"kind"`
	Identity string   `json:"identity,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Parents  []string `json:"parents,omitempty"`

	DefinedAt  int64 `json:"defined_at"`
	RequiredAt int64 `json:"required_at"`
}

// PrecheckRequest is the body of POST /v1/fresh/sessions/:id/precheck.
type PrecheckRequest struct {
	Units []session.Unit `json:"units" binding:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine readable code.
	Code string `json:"code"`

	// Result is the partial result of a unit that failed midway.
	Result *session.UnitResult `json:"result,omitempty"`
}

// HealthResponse is returned by GET /v1/fresh/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}
