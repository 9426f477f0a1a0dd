// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report turns the state of a staleness graph into a serializable
// report and renders it as text, JSON or YAML.
//
// Build only uses the read-only queries of the graph package, so a report
// reflects exactly what a client of the graph would observe.
package report

import (
	"sort"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
)

// Labeler maps an identity back to the label a host used for it.
type Labeler func(graph.Identity) string

// SymbolEntry describes one symbol.
type SymbolEntry struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       string   `json:"kind" yaml:"kind"`
	Identity   string   `json:"identity" yaml:"identity"`
	DefinedAt  int64    `json:"defined_at" yaml:"defined_at"`
	RequiredAt int64    `json:"required_at" yaml:"required_at"`
	Stale      bool     `json:"stale" yaml:"stale"`
	Reasons    []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	Aliases    []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Parents    []string `json:"parents,omitempty" yaml:"parents,omitempty"`
}

// Report is a point-in-time view of a graph.
type Report struct {
	SessionID  string        `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Timestamp  int64         `json:"timestamp" yaml:"timestamp"`
	Updated    []string      `json:"updated" yaml:"updated"`
	StaleCount int           `json:"stale_count" yaml:"stale_count"`
	Symbols    []SymbolEntry `json:"symbols" yaml:"symbols"`
}

type buildOptions struct {
	all       bool
	labeler   Labeler
	sessionID string
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithAll includes fresh symbols too. By default only stale symbols are
// listed.
func WithAll() BuildOption {
	return func(o *buildOptions) { o.all = true }
}

// WithLabeler renders identities through l instead of their hex form.
func WithLabeler(l Labeler) BuildOption {
	return func(o *buildOptions) { o.labeler = l }
}

// WithSessionID stamps the report with a session ID.
func WithSessionID(id string) BuildOption {
	return func(o *buildOptions) { o.sessionID = id }
}

// Build snapshots g. Tombstoned symbols are left out. Entries are sorted
// by name.
func Build(g *graph.Graph, opts ...BuildOption) *Report {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Report{
		SessionID: o.sessionID,
		Timestamp: int64(g.Now()),
		Updated:   Names(g.UpdatedThisRound().Sorted()),
		Symbols:   []SymbolEntry{},
	}
	for _, sym := range g.Symbols() {
		if sym.IsGarbage() {
			continue
		}
		stale := g.IsStale(sym)
		if stale {
			r.StaleCount++
		}
		if !stale && !o.all {
			continue
		}
		r.Symbols = append(r.Symbols, entryFor(g, sym, stale, o.labeler))
	}
	sort.SliceStable(r.Symbols, func(i, j int) bool { return r.Symbols[i].Name < r.Symbols[j].Name })
	return r
}

// Stale returns the stale entries of r.
func (r *Report) Stale() []SymbolEntry {
	var out []SymbolEntry
	for _, e := range r.Symbols {
		if e.Stale {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entry with the given readable name.
func (r *Report) Lookup(name string) (SymbolEntry, bool) {
	for _, e := range r.Symbols {
		if e.Name == name {
			return e, true
		}
	}
	return SymbolEntry{}, false
}

// Names returns the sorted readable names of syms.
func Names(syms []*graph.Symbol) []string {
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		out = append(out, s.ReadableName())
	}
	sort.Strings(out)
	return out
}

func entryFor(g *graph.Graph, sym *graph.Symbol, stale bool, labeler Labeler) SymbolEntry {
	e := SymbolEntry{
		Name:       sym.ReadableName(),
		Kind:       sym.Kind().String(),
		Identity:   sym.Identity().String(),
		DefinedAt:  int64(sym.DefinedAt()),
		RequiredAt: int64(sym.RequiredAt()),
		Stale:      stale,
		Parents:    Names(sym.Parents().Sorted()),
	}
	if labeler != nil && sym.Identity() != graph.NoIdentity {
		if label := labeler(sym.Identity()); label != "" {
			e.Identity = label
		}
	}
	if stale {
		e.Reasons = Names(g.StaleReasons(sym))
	}
	if sym.Identity() != graph.NoIdentity {
		for _, alias := range g.AliasesOf(sym.Identity()).Sorted() {
			if alias != sym && !alias.IsGarbage() {
				e.Aliases = append(e.Aliases, alias.ReadableName())
			}
		}
		sort.Strings(e.Aliases)
	}
	if len(e.Parents) == 0 {
		e.Parents = nil
	}
	return e
}
