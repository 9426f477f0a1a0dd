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
	"log/slog"
)

// CheckInvariants walks the whole graph and returns every violation found,
// joined. A nil result means the graph is consistent.
//
// Checked:
//   - every symbol appears in exactly one alias set, the one of its identity
//   - every alias set member is a known symbol
//   - dependency edges are symmetric and never point at collected symbols
//   - timestamps are non-negative and not in the future
func (g *Graph) CheckInvariants() error {
	var errs []error
	violation := func(sym *Symbol, id Identity, reason string) {
		name := ""
		if sym != nil {
			name = sym.ReadableName()
		}
		errs = append(errs, &InvariantError{Symbol: name, Identity: id, Reason: reason})
	}

	if g.now < 0 {
		violation(nil, NoIdentity, "negative timestamp")
	}

	filed := make(map[*Symbol]Identity)
	for id, bucket := range g.aliases {
		if id == NoIdentity {
			violation(nil, id, "alias set filed under no identity")
		}
		for sym := range bucket {
			if prev, dup := filed[sym]; dup {
				violation(sym, id, "symbol in two alias sets (also "+prev.String()+")")
				continue
			}
			filed[sym] = id
			if !g.all.Has(sym) {
				violation(sym, id, "alias set holds a collected symbol")
			}
		}
	}

	for _, sym := range g.all.Sorted() {
		if sym.identity != NoIdentity {
			if got, ok := filed[sym]; !ok {
				violation(sym, sym.identity, "symbol missing from the alias set of its identity")
			} else if got != sym.identity {
				violation(sym, got, "symbol filed under a stale identity")
			}
		} else if got, ok := filed[sym]; ok {
			violation(sym, got, "unbound symbol filed in the alias table")
		}
		if sym.definedAt < 0 || sym.requiredAt < 0 {
			violation(sym, sym.identity, "negative timestamp")
		}
		if sym.definedAt > g.now || sym.requiredAt > g.now {
			violation(sym, sym.identity, "timestamp ahead of the current unit")
		}
		for parent := range sym.parents {
			if !parent.children.Has(sym) {
				violation(sym, sym.identity, "parent edge to "+parent.ReadableName()+" has no matching child edge")
			}
			if !g.all.Has(parent) {
				violation(sym, sym.identity, "parent "+parent.ReadableName()+" was collected")
			}
		}
		for child := range sym.children {
			if !child.parents.Has(sym) {
				violation(sym, sym.identity, "child edge to "+child.ReadableName()+" has no matching parent edge")
			}
		}
	}

	if len(errs) > 0 {
		g.opts.logger.Error("graph invariants violated", slog.Int("violations", len(errs)))
	}
	return errors.Join(errs...)
}
