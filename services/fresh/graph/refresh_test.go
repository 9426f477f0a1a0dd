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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// containerWithMembers builds, in unit 1, a global a, a container b with
// namespace members computed from a, and advances to unit 2 where a is
// rebound so that every member is stale.
func containerWithMembers(t *testing.T, members ...string) (*Graph, *Symbol, map[string]*Symbol) {
	t.Helper()
	g := New()
	g.AdvanceTimestamp()
	a := bind(t, g, "a", 1)
	b := bind(t, g, "b", 10)
	ns, err := g.EnsureNamespace(10, "b", nil)
	require.NoError(t, err)

	out := make(map[string]*Symbol, len(members))
	for i, m := range members {
		out[m] = bindIn(t, g, Binding{
			Name:      AttrName(m),
			Identity:  Identity(100 + i),
			Inputs:    []*Symbol{a},
			Scope:     ns,
			Overwrite: true,
		})
	}

	g.AdvanceTimestamp()
	bind(t, g, "a", 2)
	return g, b, out
}

func TestRefresh_HealsContainer(t *testing.T) {
	g, b, m := containerWithMembers(t, "x")
	require.True(t, m["x"].IsStale())
	require.True(t, b.IsStale())

	require.NoError(t, g.Refresh(m["x"]))

	assert.False(t, m["x"].IsStale())
	assert.False(t, b.IsStale())
	assert.Equal(t, g.Now(), b.DefinedAt())
	assert.Empty(t, b.NamespaceStaleSymbols())
}

func TestRefresh_DisabledWarningsKeepBookkeeping(t *testing.T) {
	g, b, m := containerWithMembers(t, "x", "y")
	b.SetDisableWarnings(true)
	definedAt := b.DefinedAt()

	require.NoError(t, g.Refresh(m["x"]))

	assert.False(t, b.IsStale())
	assert.Equal(t, definedAt, b.DefinedAt(), "b.y is still stale")
	assert.Equal(t, []string{"b.y"}, names(g.StaleReasons(b)))

	b.SetDisableWarnings(false)
	assert.True(t, b.IsStale())
}

func TestRefresh_RebindHealsContainer(t *testing.T) {
	g, b, m := containerWithMembers(t, "x")
	require.True(t, b.IsStale())

	g.AdvanceTimestamp()
	bindIn(t, g, Binding{Name: AttrName("x"), Identity: 300, Scope: m["x"].Scope(), Overwrite: true})

	assert.False(t, m["x"].IsStale())
	assert.False(t, b.IsStale())
}

func TestRefresh_ContainerStaysStaleWhileMembersStale(t *testing.T) {
	g, b, m := containerWithMembers(t, "x", "y")
	require.Equal(t, 2, b.NamespaceStaleSymbols().Len())

	require.NoError(t, g.Refresh(m["x"]))
	assert.True(t, b.IsStale(), "y is still stale")
	assert.Equal(t, []string{"b.y"}, names(g.StaleReasons(b)))

	require.NoError(t, g.Refresh(m["y"]))
	assert.False(t, b.IsStale())
}

func TestRefresh_DirectlyStaleContainerNotHealed(t *testing.T) {
	g := New()
	g.AdvanceTimestamp()
	a := bind(t, g, "a", 1)
	c := bind(t, g, "c", 2)
	b := bind(t, g, "b", 10, c)
	ns, err := g.EnsureNamespace(10, "b", nil)
	require.NoError(t, err)
	x := bindIn(t, g, Binding{Name: AttrName("x"), Identity: 11, Inputs: []*Symbol{a}, Scope: ns, Overwrite: true})

	g.AdvanceTimestamp()
	bind(t, g, "a", 3)
	bind(t, g, "c", 4)
	require.True(t, x.IsStale())
	require.True(t, b.DefinedAt() < b.RequiredAt())

	require.NoError(t, g.Refresh(x))
	assert.True(t, b.IsStale(), "b still depends on the old c")
	assert.Equal(t, []string{"c"}, names(g.StaleReasons(b)))
}

func TestRefresh_HealsNestedContainers(t *testing.T) {
	g := New()
	g.AdvanceTimestamp()
	a := bind(t, g, "a", 1)
	d := bind(t, g, "d", 10)
	dns, err := g.EnsureNamespace(10, "d", nil)
	require.NoError(t, err)
	foo := bindIn(t, g, Binding{Name: AttrName("foo"), Identity: 11, Kind: KindSubscript, Scope: dns, Overwrite: true})
	fns, err := g.EnsureNamespace(11, foo.ReadableName(), nil)
	require.NoError(t, err)
	bar := bindIn(t, g, Binding{Name: AttrName("bar"), Identity: 12, Kind: KindSubscript, Inputs: []*Symbol{a}, Scope: fns, Overwrite: true})

	g.AdvanceTimestamp()
	bind(t, g, "a", 2)
	require.True(t, bar.IsStale())
	require.True(t, foo.IsStale())
	require.True(t, d.IsStale())
	assert.Equal(t, []string{"d[foo]"}, names(g.StaleReasons(d)))

	require.NoError(t, g.Refresh(bar))
	assert.False(t, bar.IsStale())
	assert.False(t, foo.IsStale())
	assert.False(t, d.IsStale())
	assert.Equal(t, g.Now(), dns.MaxDefinedAt())
	assert.Equal(t, g.Now(), fns.MaxDefinedAt())
}

func TestRefresh_Nil(t *testing.T) {
	assert.ErrorIs(t, New().Refresh(nil), ErrNilSymbol)
}
