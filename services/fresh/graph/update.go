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
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Update runs the update protocol on sym without changing its binding.
//
// mutated reports an in-place change of the bound value, in which case
// every alias of its identity counts as touched. With propagate set to
// false only the final refresh runs.
func (g *Graph) Update(ctx context.Context, sym *Symbol, mutated, propagate bool) error {
	if sym == nil {
		return ErrNilSymbol
	}
	if sym.tombstone {
		return fmt.Errorf("update %s: %w", sym.ReadableName(), ErrTombstoned)
	}
	return g.update(ctx, sym, mutated, propagate)
}

// updateRun is one invocation of the update protocol. seen is shared by
// every pass of the invocation and discarded afterwards.
type updateRun struct {
	g       *Graph
	updated *Symbol
	mutated bool
	seen    SymbolSet
	marked  int
}

func (g *Graph) update(ctx context.Context, sym *Symbol, mutated, propagate bool) error {
	ctx, span := startUpdateSpan(ctx, sym, mutated, propagate)
	defer span.End()
	start := time.Now()

	run := &updateRun{
		g:       g,
		updated: sym,
		mutated: mutated,
		seen:    make(SymbolSet),
	}

	if propagate && (mutated || sym.identity != sym.cachedIdentity) {
		run.collect(sym, !mutated)
	}

	collected := run.seen.Sorted()
	for _, s := range collected {
		g.updated.Add(s)
	}
	for _, s := range collected {
		run.propagateToDeps(s, true)
	}

	// Refresh last: dependents above were judged against the old
	// definition timestamp of sym.
	g.refresh(sym)
	sym.cachedIdentity = sym.identity

	span.SetAttributes(
		attribute.Int("fresh.collected", len(collected)),
		attribute.Int("fresh.marked_stale", run.marked),
	)
	recordUpdateMetrics(ctx, time.Since(start), len(collected), run.marked, mutated)

	if run.marked > 0 {
		g.opts.logger.Debug("staleness propagated",
			slog.String("symbol", sym.ReadableName()),
			slog.Int("collected", len(collected)),
			slog.Int("marked_stale", run.marked),
			slog.Int64("timestamp", int64(g.now)),
		)
	}
	return nil
}

// collect records in seen every symbol touched through aliasing and
// containment: the aliases of sym (or sym alone when skipAliases is set)
// and, recursively, every alias of each namespace that holds one of them.
func (r *updateRun) collect(sym *Symbol, skipAliases bool) {
	candidates := []*Symbol{sym}
	if !skipAliases {
		candidates = r.g.aliasesOrSelf(sym)
	}
	for _, alias := range candidates {
		if r.seen.Has(alias) || alias.tombstone {
			continue
		}
		r.seen.Add(alias)
		scope := alias.scope
		if scope == nil || !scope.IsNamespace() {
			continue
		}
		scope.maxDefinedAt = r.g.now
		for _, container := range r.g.aliases[scope.identity].Sorted() {
			container.namespaceStaleSymbols.Remove(alias)
			r.collect(container, false)
		}
	}
}

// propagateToDeps marks d stale if it is not exempt, spreads that to the
// namespaces around d, and continues into d's dependency children whether
// or not d itself was marked.
func (r *updateRun) propagateToDeps(d *Symbol, skipSeenCheck bool) {
	if !skipSeenCheck && r.seen.Has(d) {
		return
	}
	r.seen.Add(d)
	if d.tombstone {
		return
	}
	if !r.g.updated.Has(d) && r.g.shouldMarkStale(d, r.updated) {
		d.fresherAncestors.Add(r.updated)
		d.requiredAt = r.g.now
		r.marked++
		r.propagateToNamespaceParents(d, true)
		r.propagateToNamespaceChildren(d, true)
	}
	for _, child := range r.nonClassToInstanceChildren(d) {
		r.propagateToDeps(child, false)
	}
}

// propagateToNamespaceParents files d as a stale member of every alias of
// its containing namespace, then continues upward and into the dependency
// children of each container.
func (r *updateRun) propagateToNamespaceParents(d *Symbol, skipSeenCheck bool) {
	if !skipSeenCheck && r.seen.Has(d) {
		return
	}
	r.seen.Add(d)
	scope := d.scope
	if scope == nil || !scope.IsNamespace() {
		return
	}
	for _, container := range r.g.aliases[scope.identity].Sorted() {
		container.namespaceStaleSymbols.Add(d)
		r.propagateToNamespaceParents(container, false)
		for _, child := range r.nonClassToInstanceChildren(container) {
			r.propagateToDeps(child, false)
		}
	}
}

// propagateToNamespaceChildren treats every direct member of d's namespace
// as a dependent of d. Members inherited from a class are excluded.
func (r *updateRun) propagateToNamespaceChildren(d *Symbol, skipSeenCheck bool) {
	if !skipSeenCheck && r.seen.Has(d) {
		return
	}
	r.seen.Add(d)
	if d.identity == NoIdentity {
		return
	}
	ns := r.g.namespaces[d.identity]
	if ns == nil {
		return
	}
	for _, member := range ns.Members(true) {
		r.propagateToDeps(member, false)
	}
}

// nonClassToInstanceChildren returns the dependency children of d,
// leaving out class -> instance edges unless d is the symbol that
// triggered this run.
func (r *updateRun) nonClassToInstanceChildren(d *Symbol) []*Symbol {
	children := d.children.Sorted()
	if r.updated == d || d.identity == NoIdentity {
		return children
	}
	out := children[:0]
	for _, child := range children {
		if child.identity != NoIdentity {
			ns := r.g.namespaces[child.identity]
			if ns != nil && ns.clonedFrom != nil && ns.clonedFrom.identity == d.identity {
				continue
			}
		}
		out = append(out, child)
	}
	return out
}

// shouldMarkStale reports whether d must be marked stale because updated
// changed. Both symbols defined in the current unit is the same-unit
// exemption.
func (g *Graph) shouldMarkStale(d, updated *Symbol) bool {
	if d.disableWarnings {
		return false
	}
	if d == updated {
		return false
	}
	if !g.opts.sameUnitExemption {
		return true
	}
	return !(updated.definedAt == g.now && d.definedAt == g.now)
}
