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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
)

// segment is one step of a symbol path.
type segment struct {
	name      graph.Name
	subscript bool
}

// Path is a parsed symbol path such as d[foo].bar or lst[0].
type Path struct {
	raw      string
	segments []segment
}

// String returns the path as written.
func (p Path) String() string { return p.raw }

// Root returns the first segment's name.
func (p Path) Root() string { return p.segments[0].name.String() }

// IsSimple reports whether the path is a single bare name.
func (p Path) IsSimple() bool { return len(p.segments) == 1 }

// IsSubscript reports whether the last step is a [key].
func (p Path) IsSubscript() bool { return p.segments[len(p.segments)-1].subscript }

// ParsePath parses name, name.attr and name[key] steps. A key that is an
// integer becomes an index name; quoted keys keep their content verbatim.
func ParsePath(s string) (Path, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrBadPath)
	}

	var segs []segment
	i := 0
	readIdent := func() (string, error) {
		start := i
		for i < len(raw) && raw[i] != '.' && raw[i] != '[' && raw[i] != ']' {
			i++
		}
		ident := strings.TrimSpace(raw[start:i])
		if ident == "" {
			return "", fmt.Errorf("%w: %q: empty name at offset %d", ErrBadPath, raw, start)
		}
		return ident, nil
	}

	root, err := readIdent()
	if err != nil {
		return Path{}, err
	}
	segs = append(segs, segment{name: graph.AttrName(root)})

	for i < len(raw) {
		switch raw[i] {
		case '.':
			i++
			ident, err := readIdent()
			if err != nil {
				return Path{}, err
			}
			segs = append(segs, segment{name: graph.AttrName(ident)})
		case '[':
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("%w: %q: unclosed [", ErrBadPath, raw)
			}
			key := strings.TrimSpace(raw[i+1 : i+end])
			i += end + 1
			name, err := parseKey(key)
			if err != nil {
				return Path{}, fmt.Errorf("%w: %q: %v", ErrBadPath, raw, err)
			}
			segs = append(segs, segment{name: name, subscript: true})
		default:
			return Path{}, fmt.Errorf("%w: %q: unexpected %q at offset %d", ErrBadPath, raw, raw[i], i)
		}
	}
	return Path{raw: raw, segments: segs}, nil
}

func parseKey(key string) (graph.Name, error) {
	if key == "" {
		return graph.Name{}, fmt.Errorf("empty key")
	}
	if n, err := strconv.Atoi(key); err == nil {
		return graph.IndexName(n), nil
	}
	if len(key) >= 2 && (key[0] == '\'' || key[0] == '"') && key[len(key)-1] == key[0] {
		key = key[1 : len(key)-1]
		if key == "" {
			return graph.Name{}, fmt.Errorf("empty key")
		}
	}
	return graph.AttrName(key), nil
}

// resolvePath finds the symbol p names, without creating anything.
func resolvePath(g *graph.Graph, p Path) (*graph.Symbol, bool) {
	sym, ok := g.Global().Resolve(p.segments[0].name)
	if !ok || sym.IsGarbage() {
		return nil, false
	}
	for _, seg := range p.segments[1:] {
		sym, ok = member(g, sym, seg)
		if !ok || sym.IsGarbage() {
			return nil, false
		}
	}
	return sym, true
}

// member looks one step up below container: its namespace first, then
// the call scope of a function.
func member(g *graph.Graph, container *graph.Symbol, seg segment) (*graph.Symbol, bool) {
	if container.Identity() != graph.NoIdentity {
		if ns := g.NamespaceOf(container.Identity()); ns != nil {
			if seg.subscript {
				if sym, ok := ns.LookupSubscript(seg.name); ok {
					return sym, true
				}
			} else if sym, ok := ns.Resolve(seg.name); ok {
				return sym, true
			}
		}
	}
	if !seg.subscript && container.CallScope() != nil {
		return container.CallScope().Lookup(seg.name)
	}
	return nil, false
}

// bindTarget resolves where p would be bound: the scope holding its last
// step, creating the container namespace if needed.
func bindTarget(g *graph.Graph, p Path) (*graph.Scope, segment, error) {
	last := p.segments[len(p.segments)-1]
	if p.IsSimple() {
		return g.Global(), last, nil
	}

	parent := Path{raw: p.raw, segments: p.segments[:len(p.segments)-1]}
	container, ok := resolvePath(g, parent)
	if !ok {
		return nil, last, fmt.Errorf("%w: %s", ErrUnknownContainer, p.raw)
	}
	if container.Identity() == graph.NoIdentity {
		return nil, last, fmt.Errorf("%w: %s has no identity", ErrUnknownContainer, container.ReadableName())
	}
	ns, err := g.EnsureNamespace(container.Identity(), container.ReadableName(), nil)
	if err != nil {
		return nil, last, fmt.Errorf("namespace of %s: %w", container.ReadableName(), err)
	}
	return ns, last, nil
}
