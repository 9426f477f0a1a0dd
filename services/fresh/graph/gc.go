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
)

// OnValueReleased tells the graph that the value with identity id was
// deallocated by the host. Every alias of id is tombstoned and the
// namespace of id, if any, becomes garbage along with its members.
//
// Tombstoned symbols stay in the graph until the next CollectGarbage
// checkpoint. It returns the number of symbols tombstoned.
func (g *Graph) OnValueReleased(id Identity) int {
	if id == NoIdentity {
		return 0
	}
	n := 0
	for _, sym := range g.aliases[id].Sorted() {
		if !sym.tombstone {
			sym.tombstone = true
			n++
		}
	}
	if ns := g.namespaces[id]; ns != nil {
		ns.garbage = true
	}
	g.opts.logger.Debug("value released",
		slog.String("identity", id.String()),
		slog.Int("tombstoned", n),
	)
	return n
}

// Delete tombstones sym, e.g. when the host drops the binding. The symbol
// is removed at the next CollectGarbage checkpoint.
func (g *Graph) Delete(sym *Symbol) error {
	if sym == nil {
		return ErrNilSymbol
	}
	if sym.tombstone {
		return fmt.Errorf("delete %s: %w", sym.ReadableName(), ErrTombstoned)
	}
	sym.tombstone = true
	return nil
}

// CollectGarbage removes every garbage symbol from the graph: dependency
// edges are severed, the symbol leaves its alias set and its scope, and it
// is dropped from other symbols' staleness sets. Empty alias sets are
// dropped but namespaces of live containers are kept. Garbage namespaces
// with no alias left are dropped.
//
// Must only be called between evaluation units. It returns the number of
// symbols collected, or an *InvariantError if the alias table is corrupt.
func (g *Graph) CollectGarbage(ctx context.Context) (int, error) {
	var dead []*Symbol
	for _, sym := range g.all.Sorted() {
		if sym.IsGarbage() {
			dead = append(dead, sym)
		}
	}
	for _, sym := range dead {
		if err := g.kill(sym); err != nil {
			return 0, err
		}
	}
	if len(dead) > 0 {
		deadSet := NewSymbolSet(dead...)
		for sym := range g.all {
			for d := range sym.fresherAncestors {
				if deadSet.Has(d) {
					sym.fresherAncestors.Remove(d)
				}
			}
			for d := range sym.namespaceStaleSymbols {
				if deadSet.Has(d) {
					sym.namespaceStaleSymbols.Remove(d)
				}
			}
		}
		for sym := range g.updated {
			if deadSet.Has(sym) {
				g.updated.Remove(sym)
			}
		}
	}
	for id, ns := range g.namespaces {
		if ns.garbage && g.aliases[id].Len() == 0 {
			delete(g.namespaces, id)
		}
	}
	recordGCMetrics(ctx, len(dead))
	if len(dead) > 0 {
		g.opts.logger.Debug("garbage collected", slog.Int("symbols", len(dead)))
	}
	return len(dead), nil
}

// kill severs sym from the graph immediately.
func (g *Graph) kill(sym *Symbol) error {
	sym.tombstone = true
	sym.severEdges()
	if err := g.unfile(sym); err != nil {
		return err
	}
	sym.identity = NoIdentity
	if sym.scope != nil {
		sym.scope.drop(sym)
	}
	g.all.Remove(sym)
	return nil
}
