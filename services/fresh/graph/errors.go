// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrInvariantViolation is returned when the graph is found corrupt,
	// for example a symbol filed under two identities at once. The caller
	// must rebuild the graph for the affected scope; nothing is rolled back.
	ErrInvariantViolation = errors.New("graph invariant violated")

	// ErrNilSymbol is returned when a nil symbol is passed to an operation.
	ErrNilSymbol = errors.New("nil symbol")

	// ErrTombstoned is returned when operating on a symbol or scope that has
	// been tombstoned.
	ErrTombstoned = errors.New("symbol is tombstoned")

	// ErrNoIdentity is returned when an operation needs a bound identity,
	// such as creating a namespace, and the symbol has none.
	ErrNoIdentity = errors.New("symbol has no identity")

	// ErrNotClass is returned when an instance is bound against a symbol
	// that has no class namespace.
	ErrNotClass = errors.New("symbol is not a class")

	// ErrUnknownKind is returned when parsing an unknown symbol kind.
	ErrUnknownKind = errors.New("unknown symbol kind")

	// ErrEmptyName is returned when binding a symbol with an empty name.
	ErrEmptyName = errors.New("empty symbol name")
)

// InvariantError is a structured diagnostic for a corrupt graph.
//
// It identifies the offending symbol and identity so the host can decide
// which scope to rebuild. errors.Is(err, ErrInvariantViolation) holds.
type InvariantError struct {
	// Symbol is the readable name of the offending symbol, if any.
	Symbol string

	// Identity is the identity involved in the violation.
	Identity Identity

	// Reason describes the violated invariant.
	Reason string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %s (%s)", ErrInvariantViolation, e.Reason, e.Identity)
	}
	return fmt.Sprintf("%s: %s: symbol %s (%s)", ErrInvariantViolation, e.Reason, e.Symbol, e.Identity)
}

// Unwrap returns ErrInvariantViolation.
func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}
