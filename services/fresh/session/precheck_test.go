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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notebook holds x = 0; y = x + 1; x = 42; print(y) as units 0..3.
func notebook() []Unit {
	return []Unit{
		{ID: 0, Ops: []Op{bindOp("x", "zero")}},
		{ID: 1, Ops: []Op{bindOp("y", "", "x")}},
		{ID: 2, Ops: []Op{bindOp("x", "forty-two")}},
		{ID: 3, Ops: []Op{readOp("y", "logging")}},
	}
}

func TestPrecheck(t *testing.T) {
	s := New("s1")
	units := notebook()
	for _, u := range units[:3] {
		runUnit(t, s, u.ID, u.Ops...)
	}

	tests := []struct {
		name string
		unit Unit
		want []string
	}{
		{"stale read", units[3], []string{"y"}},
		{"fresh read", Unit{Ops: []Op{readOp("x")}}, []string{}},
		{"rebound before read", Unit{Ops: []Op{bindOp("y", "", "x"), readOp("y")}}, []string{}},
		{"self update is safe", Unit{Ops: []Op{bindOp("y", "", "y")}}, []string{}},
		{"read before rebind", Unit{Ops: []Op{readOp("y"), bindOp("y", "")}}, []string{"y"}},
		{"mutation target is read", Unit{Ops: []Op{{Kind: OpMutate, Target: "y"}}}, []string{"y"}},
		{"untracked names", Unit{Ops: []Op{readOp("nope")}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Precheck(tt.unit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Precheck(Unit{Ops: []Op{{Kind: OpBind}}})
	assert.ErrorIs(t, err, ErrInvalidOp)
}

func TestPrecheck_MemberTargetsStayUnsafe(t *testing.T) {
	s := New("s1")
	runUnit(t, s, 0,
		bindOp("x", "a"),
		bindOp("d", "D"),
		bindOp("d[k]", "K", "x"),
		bindOp("obj", "O"),
		bindOp("obj.attr", "A", "x"),
	)
	runUnit(t, s, 1, bindOp("x", "b"))

	for _, target := range []string{"d[k]", "obj.attr"} {
		t.Run(target, func(t *testing.T) {
			require.True(t, stale(t, s, target))
			got, err := s.Precheck(Unit{Ops: []Op{bindOp(target, "", target)}})
			require.NoError(t, err)
			assert.Equal(t, []string{target}, got)
		})
	}
}

func TestMultiUnitPrecheck(t *testing.T) {
	s := New("s1")
	units := notebook()
	for _, u := range units[:3] {
		runUnit(t, s, u.ID, u.Ops...)
	}

	res, err := s.MultiUnitPrecheck(units)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.StaleInputUnits)
	assert.Equal(t, map[int][]int{3: {1}}, res.StaleLinks)
	assert.Equal(t, map[int][]int{1: {3}}, res.RefresherLinks)
}

func TestMultiUnitPrecheck_Clean(t *testing.T) {
	s := New("s1")
	units := notebook()
	for _, u := range units[:2] {
		runUnit(t, s, u.ID, u.Ops...)
	}

	res, err := s.MultiUnitPrecheck(units)
	require.NoError(t, err)
	assert.Empty(t, res.StaleInputUnits)
	assert.Empty(t, res.StaleLinks)
	assert.Empty(t, res.RefresherLinks)

	_, err = s.MultiUnitPrecheck([]Unit{{ID: 0, Ops: []Op{{Kind: "frob"}}}})
	assert.ErrorIs(t, err, ErrUnknownOp)
}
