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

import "log/slog"

// Refresh makes sym authoritative-fresh at the current timestamp and heals
// the namespace containers above it.
func (g *Graph) Refresh(sym *Symbol) error {
	if sym == nil {
		return ErrNilSymbol
	}
	g.refresh(sym)
	return nil
}

func (g *Graph) refresh(sym *Symbol) {
	sym.resetStaleness(g.now)
	g.refreshNamespaceParents(sym, make(SymbolSet))
}

// refreshNamespaceParents removes sym from the stale members of every
// container holding one of its aliases. A container left with nothing
// stale is redefined at now, and the walk continues upward from it.
func (g *Graph) refreshNamespaceParents(sym *Symbol, seen SymbolSet) {
	if seen.Has(sym) {
		return
	}
	seen.Add(sym)
	for _, alias := range g.aliasesOrSelf(sym) {
		scope := alias.scope
		if scope == nil || !scope.IsNamespace() {
			continue
		}
		scope.maxDefinedAt = g.now
		for _, container := range g.aliases[scope.identity].Sorted() {
			container.namespaceStaleSymbols.Remove(sym)
			container.namespaceStaleSymbols.Remove(alias)
			if !container.stale() {
				if container.definedAt != g.now {
					g.opts.logger.Debug("container healed",
						slog.String("symbol", container.ReadableName()),
						slog.String("member", alias.ReadableName()),
					)
				}
				container.definedAt = g.now
				container.fresherAncestors.Clear()
			}
			g.refreshNamespaceParents(container, seen)
		}
	}
}
