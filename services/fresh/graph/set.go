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

import "sort"

// SymbolSet is a set of symbols keyed by pointer.
type SymbolSet map[*Symbol]struct{}

// NewSymbolSet returns a set holding the given symbols. Nil entries are
// dropped.
func NewSymbolSet(symbols ...*Symbol) SymbolSet {
	s := make(SymbolSet, len(symbols))
	for _, sym := range symbols {
		if sym != nil {
			s[sym] = struct{}{}
		}
	}
	return s
}

// Add inserts sym.
func (s SymbolSet) Add(sym *Symbol) {
	s[sym] = struct{}{}
}

// AddAll inserts every member of other.
func (s SymbolSet) AddAll(other SymbolSet) {
	for sym := range other {
		s[sym] = struct{}{}
	}
}

// Remove deletes sym. Removing an absent symbol is a no-op.
func (s SymbolSet) Remove(sym *Symbol) {
	delete(s, sym)
}

// Has reports membership.
func (s SymbolSet) Has(sym *Symbol) bool {
	_, ok := s[sym]
	return ok
}

// Len returns the number of members.
func (s SymbolSet) Len() int {
	return len(s)
}

// Clear removes every member, keeping the allocation.
func (s SymbolSet) Clear() {
	for sym := range s {
		delete(s, sym)
	}
}

// Clone returns a shallow copy.
func (s SymbolSet) Clone() SymbolSet {
	out := make(SymbolSet, len(s))
	out.AddAll(s)
	return out
}

// Sorted returns the members in creation order, which makes every
// traversal over a set deterministic.
func (s SymbolSet) Sorted() []*Symbol {
	out := make([]*Symbol, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}
