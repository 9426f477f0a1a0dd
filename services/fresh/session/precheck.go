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

import (
	"sort"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
)

// MultiPrecheck is the result of checking several units at once.
type MultiPrecheck struct {
	// StaleInputUnits lists the units that would read a stale symbol.
	StaleInputUnits []int `json:"stale_input_units" yaml:"stale_input_units"`

	// StaleLinks maps each stale input unit to the units that, if run,
	// would redefine the stale symbols it reads.
	StaleLinks map[int][]int `json:"stale_links" yaml:"stale_links"`

	// RefresherLinks is StaleLinks inverted.
	RefresherLinks map[int][]int `json:"refresher_links" yaml:"refresher_links"`
}

// Precheck returns the stale symbols u would read if it ran now, without
// running it. A name bound by an op of u is safe from that op on, so
// x = x + 1 does not report x. Only bare names become safe; attribute
// and subscript targets are still reported.
func (s *Session) Precheck(u Unit) ([]string, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return report.Names(s.precheck(u)), nil
}

func (s *Session) precheck(u Unit) []*graph.Symbol {
	safe := make(map[string]bool)
	found := make(graph.SymbolSet)
	for _, op := range u.Ops {
		if op.Kind == OpBind {
			if path, err := ParsePath(op.Target); err == nil && path.IsSimple() {
				safe[path.String()] = true
			}
		}
		for _, raw := range op.reads() {
			path, err := ParsePath(raw)
			if err != nil || safe[path.String()] {
				continue
			}
			if sym, ok := resolvePath(s.g, path); ok && s.g.IsStale(sym) {
				found.Add(sym)
			}
		}
	}
	return found.Sorted()
}

// MultiUnitPrecheck prechecks every unit against the current state and
// links each unit with stale inputs to the units that could refresh them.
// A unit refreshes a stale symbol if it binds that symbol and has no stale
// inputs itself.
func (s *Session) MultiUnitPrecheck(units []Unit) (*MultiPrecheck, error) {
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &MultiPrecheck{
		StaleInputUnits: []int{},
		StaleLinks:      make(map[int][]int),
		RefresherLinks:  make(map[int][]int),
	}

	staleByUnit := make(map[int]graph.SymbolSet)
	for _, u := range units {
		if stale := s.precheck(u); len(stale) > 0 {
			staleByUnit[u.ID] = graph.NewSymbolSet(stale...)
			res.StaleInputUnits = append(res.StaleInputUnits, u.ID)
		}
	}
	sort.Ints(res.StaleInputUnits)

	for _, u := range units {
		if _, stale := staleByUnit[u.ID]; stale {
			continue
		}
		writes := s.writes(u)
		for _, staleID := range res.StaleInputUnits {
			if staleID == u.ID {
				continue
			}
			for sym := range staleByUnit[staleID] {
				if writes.Has(sym) {
					res.StaleLinks[staleID] = append(res.StaleLinks[staleID], u.ID)
					res.RefresherLinks[u.ID] = append(res.RefresherLinks[u.ID], staleID)
					break
				}
			}
		}
	}
	for _, links := range []map[int][]int{res.StaleLinks, res.RefresherLinks} {
		for id := range links {
			sort.Ints(links[id])
		}
	}
	return res, nil
}

// writes returns the existing symbols u binds.
func (s *Session) writes(u Unit) graph.SymbolSet {
	out := make(graph.SymbolSet)
	for _, op := range u.Ops {
		if op.Kind != OpBind && op.Kind != OpMutate {
			continue
		}
		path, err := ParsePath(op.Target)
		if err != nil {
			continue
		}
		if sym, ok := resolvePath(s.g, path); ok {
			out.Add(sym)
		}
	}
	return out
}
