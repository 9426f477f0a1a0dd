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
	"sort"
	"strings"
)

// ScopeKind distinguishes lexical scopes from namespace scopes.
type ScopeKind int

const (
	// ScopeLexical is a module, function or class body.
	ScopeLexical ScopeKind = iota

	// ScopeNamespace is the member space of one container value.
	ScopeNamespace
)

// String returns the lowercase scope kind.
func (k ScopeKind) String() string {
	if k == ScopeNamespace {
		return "namespace"
	}
	return "lexical"
}

// symbolKey separates attribute members from subscript members of the
// same spelling: obj.foo and obj["foo"] are different symbols.
type symbolKey struct {
	name      Name
	subscript bool
}

// Scope holds symbols by name.
//
// A lexical scope has a parent and may own child scopes (function call
// scopes). A namespace scope is keyed by the identity of its container and
// is registered with the Graph; its parent is nil.
type Scope struct {
	kind    ScopeKind
	name    string
	parent  *Scope
	symbols map[symbolKey]*Symbol
	scopes  map[string]*Scope

	// Namespace scopes only.
	identity     Identity
	maxDefinedAt Timestamp
	clonedFrom   *Scope

	garbage bool
}

func newLexicalScope(name string, parent *Scope) *Scope {
	return &Scope{
		kind:    ScopeLexical,
		name:    name,
		parent:  parent,
		symbols: make(map[symbolKey]*Symbol),
		scopes:  make(map[string]*Scope),
	}
}

func newNamespaceScope(id Identity, name string, clonedFrom *Scope) *Scope {
	return &Scope{
		kind:       ScopeNamespace,
		name:       name,
		symbols:    make(map[symbolKey]*Symbol),
		scopes:     make(map[string]*Scope),
		identity:   id,
		clonedFrom: clonedFrom,
	}
}

// Kind returns the scope kind.
func (sc *Scope) Kind() ScopeKind { return sc.kind }

// Name returns the scope name. For a namespace it is the readable name of
// the container at the time the namespace was created.
func (sc *Scope) Name() string { return sc.name }

// Parent returns the enclosing lexical scope, or nil.
func (sc *Scope) Parent() *Scope { return sc.parent }

// IsNamespace reports whether the scope is a namespace scope.
func (sc *Scope) IsNamespace() bool { return sc.kind == ScopeNamespace }

// Identity returns the container identity of a namespace scope.
func (sc *Scope) Identity() Identity { return sc.identity }

// MaxDefinedAt returns the last unit in which any alias of the namespace
// gained a new or updated member.
func (sc *Scope) MaxDefinedAt() Timestamp { return sc.maxDefinedAt }

// ClonedFrom returns the namespace this one was instantiated from, or nil.
func (sc *Scope) ClonedFrom() *Scope { return sc.clonedFrom }

// IsGarbage reports whether this scope or any enclosing scope is garbage.
func (sc *Scope) IsGarbage() bool {
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.garbage {
			return true
		}
	}
	return false
}

// Lookup returns the attribute member with the given name.
func (sc *Scope) Lookup(name Name) (*Symbol, bool) {
	sym, ok := sc.symbols[symbolKey{name: name}]
	return sym, ok
}

// LookupSubscript returns the subscript member with the given name.
func (sc *Scope) LookupSubscript(name Name) (*Symbol, bool) {
	sym, ok := sc.symbols[symbolKey{name: name, subscript: true}]
	return sym, ok
}

// Resolve looks name up in this scope and then the enclosing lexical
// scopes. Namespace scopes fall back to the namespace they were cloned
// from, the way an instance attribute falls back to its class.
func (sc *Scope) Resolve(name Name) (*Symbol, bool) {
	for cur := sc; cur != nil; cur = cur.parent {
		if sym, ok := cur.Lookup(name); ok {
			return sym, true
		}
		if cur.clonedFrom != nil {
			if sym, ok := cur.clonedFrom.Lookup(name); ok {
				return sym, true
			}
		}
	}
	return nil, false
}

// ChildScope returns the named child scope, if present.
func (sc *Scope) ChildScope(name string) (*Scope, bool) {
	child, ok := sc.scopes[name]
	return child, ok
}

// Members returns the symbols held directly by this scope in creation
// order. Unless excludeClass is set, members of the namespace this one
// was cloned from are included too.
func (sc *Scope) Members(excludeClass bool) []*Symbol {
	out := make([]*Symbol, 0, len(sc.symbols))
	for _, sym := range sc.symbols {
		out = append(out, sym)
	}
	if !excludeClass && sc.clonedFrom != nil {
		for key, sym := range sc.clonedFrom.symbols {
			if _, shadowed := sc.symbols[key]; !shadowed {
				out = append(out, sym)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of symbols held directly by the scope.
func (sc *Scope) Len() int { return len(sc.symbols) }

// path returns the dotted path of lexical scope names below the root.
func (sc *Scope) path() string {
	var parts []string
	for cur := sc; cur != nil && cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// qualify returns the readable name of a member of this scope.
func (sc *Scope) qualify(name Name, subscript bool) string {
	if sc.kind == ScopeNamespace {
		if subscript {
			return sc.name + "[" + name.subscriptKey() + "]"
		}
		return sc.name + "." + name.String()
	}
	prefix := sc.path()
	if prefix == "" {
		return name.String()
	}
	return prefix + "." + name.String()
}

// put files sym under its key, replacing any previous holder.
func (sc *Scope) put(sym *Symbol) {
	sc.symbols[symbolKey{name: sym.name, subscript: sym.kind == KindSubscript}] = sym
}

// get returns the symbol filed under the given key.
func (sc *Scope) get(name Name, subscript bool) *Symbol {
	return sc.symbols[symbolKey{name: name, subscript: subscript}]
}

// drop removes sym if it is still the holder of its key.
func (sc *Scope) drop(sym *Symbol) {
	key := symbolKey{name: sym.name, subscript: sym.kind == KindSubscript}
	if sc.symbols[key] == sym {
		delete(sc.symbols, key)
	}
}

// makeChildScope returns the named lexical child scope, creating it if
// needed.
func (sc *Scope) makeChildScope(name string) *Scope {
	if child, ok := sc.scopes[name]; ok {
		return child
	}
	child := newLexicalScope(name, sc)
	sc.scopes[name] = child
	return child
}
