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

// Symbol is a named binding with dependency edges and staleness
// bookkeeping.
//
// A Symbol survives rebinding: its identity may change any number of times
// while the Symbol itself stays the same node in the graph. The containing
// scope is a back-reference only; the graph owns the Symbol.
//
// Symbols are created by Graph.UpsertSymbol and must not be constructed
// directly.
type Symbol struct {
	name  Name
	kind  SymbolKind
	scope *Scope

	// identity is the identity the symbol is filed under in the alias table.
	identity Identity

	// cachedIdentity is the identity at the end of the previous update.
	cachedIdentity Identity

	parents  SymbolSet
	children SymbolSet

	definedAt  Timestamp
	requiredAt Timestamp

	fresherAncestors      SymbolSet
	namespaceStaleSymbols SymbolSet

	disableWarnings bool
	tombstone       bool

	// callScope is non-nil for KindFunction.
	callScope *Scope

	// seq orders symbols by creation for deterministic traversal.
	seq uint64
}

func newSymbol(name Name, kind SymbolKind, scope *Scope, now Timestamp, seq uint64) *Symbol {
	return &Symbol{
		name:                  name,
		kind:                  kind,
		scope:                 scope,
		parents:               make(SymbolSet),
		children:              make(SymbolSet),
		definedAt:             now,
		requiredAt:            now,
		fresherAncestors:      make(SymbolSet),
		namespaceStaleSymbols: make(SymbolSet),
		seq:                   seq,
	}
}

// Name returns the symbol's name within its scope.
func (s *Symbol) Name() Name { return s.name }

// Kind returns the symbol kind.
func (s *Symbol) Kind() SymbolKind { return s.kind }

// Scope returns the containing scope.
func (s *Symbol) Scope() *Scope { return s.scope }

// Identity returns the identity of the currently bound value.
func (s *Symbol) Identity() Identity { return s.identity }

// CachedIdentity returns the identity the symbol had when its last update
// completed.
func (s *Symbol) CachedIdentity() Identity { return s.cachedIdentity }

// DefinedAt returns the unit in which the symbol was last made fresh.
func (s *Symbol) DefinedAt() Timestamp { return s.definedAt }

// RequiredAt returns the unit the symbol must be defined at to be fresh.
func (s *Symbol) RequiredAt() Timestamp { return s.requiredAt }

// CallScope returns the call scope of a function symbol, or nil.
func (s *Symbol) CallScope() *Scope { return s.callScope }

// IsSubscript reports whether the symbol is an index or key member.
func (s *Symbol) IsSubscript() bool { return s.kind == KindSubscript }

// IsFunction reports whether the symbol is a function definition.
func (s *Symbol) IsFunction() bool { return s.kind == KindFunction }

// IsClass reports whether the symbol is a class definition.
func (s *Symbol) IsClass() bool { return s.kind == KindClass }

// Parents returns a copy of the symbols this one was computed from.
func (s *Symbol) Parents() SymbolSet { return s.parents.Clone() }

// Children returns a copy of the symbols computed from this one.
func (s *Symbol) Children() SymbolSet { return s.children.Clone() }

// FresherAncestors returns a copy of the symbols whose change made this
// one stale.
func (s *Symbol) FresherAncestors() SymbolSet { return s.fresherAncestors.Clone() }

// NamespaceStaleSymbols returns a copy of the stale members of this
// symbol's namespace.
func (s *Symbol) NamespaceStaleSymbols() SymbolSet { return s.namespaceStaleSymbols.Clone() }

// DisableWarnings reports whether staleness reporting is suppressed.
func (s *Symbol) DisableWarnings() bool { return s.disableWarnings }

// SetDisableWarnings suppresses (or re-enables) staleness reporting for
// this symbol. Bookkeeping continues either way.
func (s *Symbol) SetDisableWarnings(disable bool) { s.disableWarnings = disable }

// IsTombstoned reports whether the symbol has been tombstoned.
func (s *Symbol) IsTombstoned() bool { return s.tombstone }

// IsGarbage reports whether the symbol is tombstoned or unreachable
// because a scope above it is garbage.
func (s *Symbol) IsGarbage() bool {
	return s.tombstone || (s.scope != nil && s.scope.IsGarbage())
}

// IsStale reports whether the symbol's value may be out of date.
//
// A symbol is stale when it was defined before the unit it is required at,
// or when a member of its namespace is stale. Disabled warnings always win.
func (s *Symbol) IsStale() bool {
	if s.disableWarnings {
		return false
	}
	return s.stale()
}

// stale is IsStale without the warnings opt-out.
func (s *Symbol) stale() bool {
	return s.definedAt < s.requiredAt || len(s.namespaceStaleSymbols) > 0
}

// ReadableName returns the namespace-qualified name, e.g. d[foo], obj.attr,
// f.x for a parameter of f.
func (s *Symbol) ReadableName() string {
	if s.scope == nil {
		return s.name.String()
	}
	return s.scope.qualify(s.name, s.kind == KindSubscript)
}

// String implements fmt.Stringer.
func (s *Symbol) String() string {
	return "<" + s.ReadableName() + ">"
}

// addParent records the edge s -> parent.
func (s *Symbol) addParent(parent *Symbol) {
	s.parents.Add(parent)
	parent.children.Add(s)
}

// severParents removes every s -> parent edge.
func (s *Symbol) severParents() {
	for parent := range s.parents {
		parent.children.Remove(s)
	}
	s.parents.Clear()
}

// severEdges removes s from the dependency graph entirely.
func (s *Symbol) severEdges() {
	s.severParents()
	for child := range s.children {
		child.parents.Remove(s)
	}
	s.children.Clear()
}

// resetStaleness makes the symbol authoritative-fresh at now.
func (s *Symbol) resetStaleness(now Timestamp) {
	s.fresherAncestors.Clear()
	s.namespaceStaleSymbols.Clear()
	s.definedAt = now
	s.requiredAt = now
}
