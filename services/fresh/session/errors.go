// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownOp is returned for an op kind the session does not handle.
	ErrUnknownOp = errors.New("unknown op")

	// ErrInvalidOp is returned when an op is missing a required field.
	ErrInvalidOp = errors.New("invalid op")

	// ErrBadPath is returned when a symbol path does not parse.
	ErrBadPath = errors.New("bad symbol path")

	// ErrUnknownSymbol is returned when a path resolves to nothing.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrUnknownContainer is returned when a member is bound under a
	// container that is missing or has no identity.
	ErrUnknownContainer = errors.New("unknown container")

	// ErrCorrupt is returned once the graph of a session has failed an
	// invariant check. The session refuses further units until Rebuild.
	ErrCorrupt = errors.New("session graph is corrupt")
)
