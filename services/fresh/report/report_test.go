// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// staleGraph builds x, y = x + 1, z = y (alias of y), then rebinds x.
func staleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	g := graph.New()

	g.AdvanceTimestamp()
	x, err := g.UpsertSymbol(ctx, graph.Binding{Name: graph.AttrName("x"), Identity: 1, Overwrite: true})
	require.NoError(t, err)

	g.AdvanceTimestamp()
	y, err := g.UpsertSymbol(ctx, graph.Binding{Name: graph.AttrName("y"), Identity: 2, Inputs: []*graph.Symbol{x}, Overwrite: true})
	require.NoError(t, err)
	_, err = g.UpsertSymbol(ctx, graph.Binding{Name: graph.AttrName("z"), Identity: 2, Inputs: []*graph.Symbol{y}, Overwrite: true})
	require.NoError(t, err)

	g.AdvanceTimestamp()
	_, err = g.UpsertSymbol(ctx, graph.Binding{Name: graph.AttrName("x"), Identity: 3, Overwrite: true})
	require.NoError(t, err)
	return g
}

func TestBuild_StaleOnly(t *testing.T) {
	g := staleGraph(t)
	r := Build(g, WithSessionID("s1"))

	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, int64(3), r.Timestamp)
	assert.Equal(t, []string{"x"}, r.Updated)
	assert.Equal(t, 2, r.StaleCount)

	require.Len(t, r.Symbols, 2)
	y, ok := r.Lookup("y")
	require.True(t, ok)
	assert.True(t, y.Stale)
	assert.Equal(t, []string{"x"}, y.Reasons)
	assert.Equal(t, []string{"z"}, y.Aliases)
	assert.Equal(t, []string{"x"}, y.Parents)

	z, ok := r.Lookup("z")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, z.Reasons, "z is stale through y")

	_, ok = r.Lookup("x")
	assert.False(t, ok, "fresh symbols are omitted by default")
}

func TestBuild_AllWithLabeler(t *testing.T) {
	g := staleGraph(t)
	labels := map[graph.Identity]string{3: "forty-two"}
	r := Build(g, WithAll(), WithLabeler(func(id graph.Identity) string { return labels[id] }))

	require.Len(t, r.Symbols, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{r.Symbols[0].Name, r.Symbols[1].Name, r.Symbols[2].Name})

	x, _ := r.Lookup("x")
	assert.False(t, x.Stale)
	assert.Equal(t, "forty-two", x.Identity)
	assert.Nil(t, x.Reasons)

	y, _ := r.Lookup("y")
	assert.Equal(t, graph.Identity(2).String(), y.Identity, "unlabeled identities render as hex")

	assert.Len(t, r.Stale(), 2)
}

func TestBuild_SkipsGarbage(t *testing.T) {
	g := staleGraph(t)
	g.OnValueReleased(2)

	r := Build(g, WithAll())
	assert.Equal(t, 0, r.StaleCount)
	require.Len(t, r.Symbols, 1)
	assert.Equal(t, "x", r.Symbols[0].Name)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, " yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRender(t *testing.T) {
	r := Build(staleGraph(t), WithAll(), WithSessionID("s1"))

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatText))
		out := buf.String()
		assert.Contains(t, out, "session s1, unit 3")
		assert.Contains(t, out, "2 stale")
		assert.Contains(t, out, "✗ y")
		assert.Contains(t, out, "✓ x")
		assert.Contains(t, out, "fresher: x")
		assert.Contains(t, out, "updated: x")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatJSON))
		var back Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
		assert.Equal(t, r.StaleCount, back.StaleCount)
		assert.Len(t, back.Symbols, 3)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatYAML))
		var back Report
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
		assert.Equal(t, "s1", back.SessionID)
		assert.Equal(t, []string{"x"}, back.Updated)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.ErrorIs(t, Render(&bytes.Buffer{}, r, "xml"), ErrUnknownFormat)
	})
}

func TestRender_Clean(t *testing.T) {
	g := graph.New()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(g), FormatText))
	assert.Contains(t, buf.String(), "no stale symbols")
}
