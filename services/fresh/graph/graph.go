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
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Graph owns the symbols, scopes, alias table and namespace table of one
// tracked session.
//
// Thread Safety: NOT safe for concurrent use. See the package doc.
type Graph struct {
	opts options

	now    Timestamp
	global *Scope

	// aliases maps an identity to every symbol currently bound to it.
	aliases map[Identity]SymbolSet

	// namespaces maps a container identity to its member space.
	namespaces map[Identity]*Scope

	// updated accumulates the symbols updated since the last
	// AdvanceTimestamp.
	updated SymbolSet

	// all holds every live or not-yet-collected symbol.
	all SymbolSet

	nextSeq uint64
}

// New creates an empty graph at timestamp zero.
func New(opts ...Option) *Graph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Graph{
		opts:       o,
		global:     newLexicalScope("<module>", nil),
		aliases:    make(map[Identity]SymbolSet),
		namespaces: make(map[Identity]*Scope),
		updated:    make(SymbolSet),
		all:        make(SymbolSet),
	}
}

// Binding describes one create-or-update of a named symbol.
type Binding struct {
	// Name is the symbol name within Scope.
	Name Name

	// Identity is the identity of the newly bound value. NoIdentity binds
	// the name to an untracked value.
	Identity Identity

	// Inputs are the symbols the value was computed from. Nil and
	// tombstoned entries are ignored.
	Inputs []*Symbol

	// Scope is the containing scope. Nil means the global scope.
	Scope *Scope

	// Kind is the symbol kind.
	Kind SymbolKind

	// Mutated is set when the value was changed in place rather than
	// rebound.
	Mutated bool

	// Overwrite replaces the symbol's dependency edges with Inputs instead
	// of adding to them.
	Overwrite bool

	// SkipPropagation binds without running the propagation passes of the
	// update protocol. The symbol is still refreshed.
	SkipPropagation bool

	// Args names the parameters of a function symbol. Each gets a symbol
	// in the function's call scope.
	Args []string

	// InstanceOf is the class symbol this value was instantiated from. The
	// value's namespace is recorded as cloned from the class namespace.
	InstanceOf *Symbol
}

// Now returns the current timestamp.
func (g *Graph) Now() Timestamp { return g.now }

// AdvanceTimestamp starts a new evaluation unit and clears the
// updated-this-round set. It returns the new timestamp.
func (g *Graph) AdvanceTimestamp() Timestamp {
	g.now++
	g.updated.Clear()
	return g.now
}

// Global returns the global lexical scope.
func (g *Graph) Global() *Scope { return g.global }

// SameUnitExemption reports whether the same-unit exemption is enabled.
func (g *Graph) SameUnitExemption() bool { return g.opts.sameUnitExemption }

// AliasesOf returns a copy of the symbols currently bound to id.
func (g *Graph) AliasesOf(id Identity) SymbolSet {
	return g.aliases[id].Clone()
}

// NamespaceOf returns the namespace scope of the container with identity
// id, or nil.
func (g *Graph) NamespaceOf(id Identity) *Scope {
	return g.namespaces[id]
}

// UpdatedThisRound returns a copy of the symbols updated since the last
// AdvanceTimestamp.
func (g *Graph) UpdatedThisRound() SymbolSet {
	return g.updated.Clone()
}

// Symbols returns every symbol known to the graph in creation order,
// including tombstoned symbols not yet collected.
func (g *Graph) Symbols() []*Symbol {
	return g.all.Sorted()
}

// IsStale reports whether sym is stale. A nil symbol is never stale.
func (g *Graph) IsStale(sym *Symbol) bool {
	if sym == nil {
		return false
	}
	return sym.IsStale()
}

// StaleReasons returns fresherAncestors ∪ namespaceStaleSymbols of sym in
// creation order.
func (g *Graph) StaleReasons(sym *Symbol) []*Symbol {
	if sym == nil {
		return nil
	}
	reasons := sym.fresherAncestors.Clone()
	reasons.AddAll(sym.namespaceStaleSymbols)
	return reasons.Sorted()
}

// EnsureNamespace returns the namespace scope for the container identity
// id, creating it if needed. name is used to build readable member names.
// clonedFrom, if non-nil, is recorded on a namespace that has none.
func (g *Graph) EnsureNamespace(id Identity, name string, clonedFrom *Scope) (*Scope, error) {
	if id == NoIdentity {
		return nil, fmt.Errorf("ensure namespace %q: %w", name, ErrNoIdentity)
	}
	if ns, ok := g.namespaces[id]; ok {
		if ns.clonedFrom == nil && clonedFrom != nil && clonedFrom != ns {
			ns.clonedFrom = clonedFrom
		}
		return ns, nil
	}
	ns := newNamespaceScope(id, name, clonedFrom)
	g.namespaces[id] = ns
	return ns, nil
}

// UpsertSymbol creates or updates the binding b and runs the update
// protocol on the resulting symbol.
//
// Inputs that are nil or tombstoned are skipped; they model references to
// values that are not tracked. An *InvariantError is returned if the alias
// table is found corrupt, in which case the graph must be rebuilt.
func (g *Graph) UpsertSymbol(ctx context.Context, b Binding) (*Symbol, error) {
	ctx, span := startUpsertSpan(ctx, b)
	defer span.End()

	sym, err := g.upsert(ctx, b)
	recordUpsertMetrics(ctx, b.Kind, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("fresh.symbol", sym.ReadableName()))
	return sym, nil
}

func (g *Graph) upsert(ctx context.Context, b Binding) (*Symbol, error) {
	if b.Name.IsZero() {
		return nil, ErrEmptyName
	}
	scope := b.Scope
	if scope == nil {
		scope = g.global
	}
	if scope.IsGarbage() {
		return nil, fmt.Errorf("bind %s: scope %q: %w", b.Name, scope.name, ErrTombstoned)
	}
	if b.InstanceOf != nil && !b.InstanceOf.IsClass() {
		return nil, fmt.Errorf("bind %s: instance of %s: %w", b.Name, b.InstanceOf.ReadableName(), ErrNotClass)
	}

	overwrite := b.Overwrite
	sym := scope.get(b.Name, b.Kind == KindSubscript)
	if sym != nil && sym.IsGarbage() {
		if err := g.kill(sym); err != nil {
			return nil, err
		}
		sym = nil
	}
	if sym != nil && sym.kind != b.Kind {
		if overwrite {
			g.opts.logger.Debug("kind changed, replacing symbol",
				slog.String("symbol", sym.ReadableName()),
				slog.String("from", sym.kind.String()),
				slog.String("to", b.Kind.String()),
			)
			if err := g.kill(sym); err != nil {
				return nil, err
			}
			sym = nil
		} else {
			g.changeKind(sym, b.Kind)
		}
	}
	if sym == nil {
		sym = g.createSymbol(b.Name, b.Kind, scope)
	}

	if err := g.rebind(sym, b.Identity); err != nil {
		return nil, err
	}

	if b.Kind == KindClass && b.Identity != NoIdentity {
		if _, err := g.EnsureNamespace(b.Identity, sym.ReadableName(), nil); err != nil {
			return nil, err
		}
	}
	if b.InstanceOf != nil && b.Identity != NoIdentity {
		classNS := g.namespaces[b.InstanceOf.identity]
		if classNS == nil {
			return nil, fmt.Errorf("bind %s: instance of %s: %w", b.Name, b.InstanceOf.ReadableName(), ErrNotClass)
		}
		if _, err := g.EnsureNamespace(b.Identity, sym.ReadableName(), classNS); err != nil {
			return nil, err
		}
	}

	g.updateEdges(sym, b.Inputs, overwrite)

	if err := g.update(ctx, sym, b.Mutated, !b.SkipPropagation); err != nil {
		return nil, err
	}

	if sym.kind == KindFunction {
		for _, arg := range b.Args {
			if arg == "" {
				continue
			}
			if _, err := g.upsert(ctx, Binding{
				Name:            AttrName(arg),
				Scope:           sym.callScope,
				Overwrite:       true,
				SkipPropagation: true,
			}); err != nil {
				return nil, fmt.Errorf("bind parameter %s of %s: %w", arg, sym.ReadableName(), err)
			}
		}
	}
	return sym, nil
}

func (g *Graph) createSymbol(name Name, kind SymbolKind, scope *Scope) *Symbol {
	g.nextSeq++
	sym := newSymbol(name, kind, scope, g.now, g.nextSeq)
	if kind == KindFunction {
		sym.callScope = scope.makeChildScope(name.String())
	}
	scope.put(sym)
	g.all.Add(sym)
	return sym
}

func (g *Graph) changeKind(sym *Symbol, kind SymbolKind) {
	sym.kind = kind
	if kind == KindFunction {
		sym.callScope = sym.scope.makeChildScope(sym.name.String())
	} else {
		sym.callScope = nil
	}
}

// updateEdges records the dependency edges of sym. A symbol is never its
// own parent. Overwrite is suppressed when sym is among the inputs or is a
// parent of one of them, since the old edges then still describe the value.
func (g *Graph) updateEdges(sym *Symbol, inputs []*Symbol, overwrite bool) {
	deps := make(SymbolSet, len(inputs))
	for _, in := range inputs {
		if in == nil || in.tombstone {
			continue
		}
		if in == sym {
			overwrite = false
			continue
		}
		if in.parents.Has(sym) {
			overwrite = false
		}
		deps.Add(in)
	}
	if overwrite {
		sym.severParents()
	}
	for _, dep := range deps.Sorted() {
		sym.addParent(dep)
	}
	sym.requiredAt = 0
	sym.fresherAncestors.Clear()
}

// rebind moves sym from the alias bucket of its current identity to the
// bucket of id.
func (g *Graph) rebind(sym *Symbol, id Identity) error {
	if sym.identity == id && (id == NoIdentity || g.aliases[id].Has(sym)) {
		return nil
	}
	if err := g.unfile(sym); err != nil {
		return err
	}
	sym.identity = id
	if id != NoIdentity {
		bucket, ok := g.aliases[id]
		if !ok {
			bucket = make(SymbolSet)
			g.aliases[id] = bucket
		}
		bucket.Add(sym)
	}
	return nil
}

// unfile removes sym from the bucket of its current identity, dropping the
// bucket if it becomes empty. The namespace of the identity is kept.
func (g *Graph) unfile(sym *Symbol) error {
	if sym.identity == NoIdentity {
		return nil
	}
	bucket := g.aliases[sym.identity]
	if !bucket.Has(sym) {
		err := &InvariantError{
			Symbol:   sym.ReadableName(),
			Identity: sym.identity,
			Reason:   "symbol missing from the alias set of its identity",
		}
		g.opts.logger.Error("alias table corrupt",
			slog.String("symbol", sym.ReadableName()),
			slog.String("identity", sym.identity.String()),
		)
		return err
	}
	bucket.Remove(sym)
	if bucket.Len() == 0 {
		delete(g.aliases, sym.identity)
	}
	return nil
}

// aliasesOrSelf returns the alias set of sym's identity, or just sym if
// it is not bound to a tracked value.
func (g *Graph) aliasesOrSelf(sym *Symbol) []*Symbol {
	if sym.identity == NoIdentity {
		return []*Symbol{sym}
	}
	bucket := g.aliases[sym.identity]
	if !bucket.Has(sym) {
		out := bucket.Clone()
		out.Add(sym)
		return out.Sorted()
	}
	return bucket.Sorted()
}
