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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindOp(target, value string, inputs ...string) Op {
	return Op{Kind: OpBind, Target: target, Value: value, Inputs: inputs}
}

func readOp(inputs ...string) Op {
	return Op{Kind: OpRead, Inputs: inputs}
}

func runUnit(t *testing.T, s *Session, id int, ops ...Op) *UnitResult {
	t.Helper()
	res, err := s.RunUnit(context.Background(), Unit{ID: id, Ops: ops})
	require.NoError(t, err)
	return res
}

func stale(t *testing.T, s *Session, path string) bool {
	t.Helper()
	got, err := s.IsStale(path)
	require.NoError(t, err)
	return got
}

func TestRunUnit_DependencyChain(t *testing.T) {
	s := New("s1", WithInvariantChecks(true))

	runUnit(t, s, 0, bindOp("x", "zero"))
	runUnit(t, s, 1, bindOp("y", "one", "x"))
	res := runUnit(t, s, 2, bindOp("x", "forty-two"))

	assert.Equal(t, int64(3), res.Timestamp)
	assert.Equal(t, []string{"x"}, res.Updated)
	assert.Equal(t, []string{"y"}, res.Stale)
	assert.True(t, stale(t, s, "y"))
	assert.False(t, stale(t, s, "x"))

	reasons, err := s.StaleReasons("y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, reasons)

	res = runUnit(t, s, 3, readOp("y", "logging"))
	assert.Equal(t, []string{"y"}, res.StaleReads)
	assert.Equal(t, []string{"logging"}, res.MissingInputs)
	assert.Empty(t, res.Updated)

	res = runUnit(t, s, 1, bindOp("y", "two", "x"))
	assert.Empty(t, res.Stale, "rerunning the defining unit refreshes y")
	assert.Equal(t, 5, s.Units())
}

func TestRunUnit_SameLabelIsNotAChange(t *testing.T) {
	s := New("s1")
	runUnit(t, s, 0, bindOp("x", "v"))
	runUnit(t, s, 1, bindOp("y", "w", "x"))
	runUnit(t, s, 2, bindOp("x", "v"))

	assert.False(t, stale(t, s, "y"), "rebinding to the same value does not propagate")
}

func TestRunUnit_SameUnitExemption(t *testing.T) {
	s := New("s1")
	runUnit(t, s, 0,
		bindOp("x", "a"),
		bindOp("y", "b", "x"),
		bindOp("x", "c"),
	)
	assert.False(t, stale(t, s, "y"))
}

func TestRunUnit_MutationReachesAliases(t *testing.T) {
	s := New("s1", WithInvariantChecks(true))
	runUnit(t, s, 0,
		bindOp("lst", "L"),
		bindOp("alias", "L"),
		bindOp("n", "N", "alias"),
	)
	res := runUnit(t, s, 1, Op{Kind: OpMutate, Target: "lst"})

	assert.Equal(t, []string{"alias", "lst"}, res.Updated)
	assert.True(t, stale(t, s, "n"))
	reasons, err := s.StaleReasons("n")
	require.NoError(t, err)
	assert.Contains(t, reasons, "lst")

	res = runUnit(t, s, 2, Op{Kind: OpMutate, Value: "N", Inputs: []string{"lst"}})
	assert.Equal(t, []string{"n"}, res.Updated)
	assert.False(t, stale(t, s, "n"))
}

func TestRunUnit_Namespaces(t *testing.T) {
	s := New("s1", WithInvariantChecks(true))
	runUnit(t, s, 0,
		bindOp("d", "D"),
		bindOp("d[foo]", "F"),
		bindOp("d.bar", "B"),
		bindOp("d[0]", "Z"),
		bindOp("v", "V", "d[foo]"),
	)

	entry, err := s.Symbol("d['foo']")
	require.NoError(t, err)
	assert.Equal(t, "d[foo]", entry.Name)
	assert.Equal(t, "subscript", entry.Kind)

	entry, err = s.Symbol("d.bar")
	require.NoError(t, err)
	assert.Equal(t, "value", entry.Kind)

	_, err = s.Symbol("d[0]")
	require.NoError(t, err)

	res := runUnit(t, s, 1, bindOp("d[foo]", "F2"))
	assert.Equal(t, []string{"d", "d[foo]"}, res.Updated)
	assert.True(t, stale(t, s, "v"))
	assert.False(t, stale(t, s, "d"))
}

func TestRunUnit_UnknownContainer(t *testing.T) {
	s := New("s1")
	res, err := s.RunUnit(context.Background(), Unit{ID: 0, Ops: []Op{
		bindOp("a", "A"),
		bindOp("e[0]", "X"),
		bindOp("b", "B"),
	}})
	require.ErrorIs(t, err, ErrUnknownContainer)
	require.NotNil(t, res)
	assert.Equal(t, []string{"a"}, res.Updated, "ops before the failure stay applied")

	_, err = s.IsStale("b")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestRunUnit_ReleaseAndDelete(t *testing.T) {
	s := New("s1", WithInvariantChecks(true))
	runUnit(t, s, 0, bindOp("a", "A"), bindOp("b", "A"), bindOp("c", "C"))

	res := runUnit(t, s, 1, Op{Kind: OpRelease, Value: "A"})
	assert.Equal(t, 2, res.Released)
	assert.Equal(t, 2, res.Collected)
	_, err := s.IsStale("a")
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	res = runUnit(t, s, 2, Op{Kind: OpDelete, Target: "c"})
	assert.Equal(t, 1, res.Collected)
	_, err = s.IsStale("c")
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	runUnit(t, s, 3, bindOp("a", "A"))
	assert.Len(t, s.Snapshot().Symbols, 1, "a released label names a new value")

	_, err = s.RunUnit(context.Background(), Unit{ID: 4, Ops: []Op{{Kind: OpRelease, Value: "never-bound"}}})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestRunUnit_FunctionsAndClasses(t *testing.T) {
	s := New("s1", WithInvariantChecks(true))
	runUnit(t, s, 0,
		Op{Kind: OpBind, Target: "f", Value: "F", SymbolKind: "function", Args: []string{"p"}},
		Op{Kind: OpBind, Target: "C", Value: "C", SymbolKind: "class"},
		bindOp("C.count", "zero"),
		Op{Kind: OpBind, Target: "obj", Value: "O", InstanceOf: "C"},
	)

	entry, err := s.Symbol("f.p")
	require.NoError(t, err)
	assert.Equal(t, "f.p", entry.Name)

	entry, err = s.Symbol("obj.count")
	require.NoError(t, err)
	assert.Equal(t, "C.count", entry.Name, "instance attributes fall back to the class")

	_, err = s.RunUnit(context.Background(), Unit{ID: 1, Ops: []Op{
		{Kind: OpBind, Target: "bad", Value: "X", InstanceOf: "obj"},
	}})
	assert.Error(t, err)
}

func TestRunUnit_Validation(t *testing.T) {
	s := New("s1")
	ctx := context.Background()

	_, err := s.RunUnit(ctx, Unit{Ops: []Op{{Kind: "frob", Target: "x"}}})
	assert.ErrorIs(t, err, ErrUnknownOp)

	_, err = s.RunUnit(ctx, Unit{Ops: []Op{{Kind: OpBind}}})
	assert.ErrorIs(t, err, ErrInvalidOp)

	_, err = s.RunUnit(ctx, Unit{Ops: []Op{{Kind: OpRead}}})
	assert.ErrorIs(t, err, ErrInvalidOp)

	_, err = s.RunUnit(ctx, Unit{Ops: []Op{{Kind: OpBind, Target: "x", SymbolKind: "module"}}})
	assert.ErrorIs(t, err, ErrInvalidOp)

	_, err = s.RunUnit(ctx, Unit{ID: -1})
	assert.ErrorIs(t, err, ErrInvalidOp)

	assert.Equal(t, 0, s.Units(), "invalid units never advance the session")
}

func TestRunUnit_CorruptUntilRebuild(t *testing.T) {
	s := New("s1")
	runUnit(t, s, 0, bindOp("x", "X"))

	s.mu.Lock()
	s.corrupt = errors.New("alias table damaged")
	s.mu.Unlock()

	_, err := s.RunUnit(context.Background(), Unit{ID: 1, Ops: []Op{bindOp("y", "Y")}})
	assert.ErrorIs(t, err, ErrCorrupt)

	s.Rebuild()
	assert.Equal(t, 0, s.Units())
	runUnit(t, s, 1, bindOp("y", "Y"))
	_, err = s.IsStale("x")
	assert.ErrorIs(t, err, ErrUnknownSymbol, "rebuild starts from an empty graph")
}

type memStore struct {
	mu    sync.Mutex
	saved []*report.Report
	err   error
}

func (m *memStore) Save(_ context.Context, snap *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	return nil
}

func TestRunUnit_SavesSnapshots(t *testing.T) {
	store := &memStore{}
	s := New("s1", WithSnapshotStore(store))
	runUnit(t, s, 0, bindOp("x", "X"))
	runUnit(t, s, 1, bindOp("y", "Y", "x"))

	require.Len(t, store.saved, 2)
	assert.Equal(t, "s1", store.saved[1].SessionID)
	assert.Equal(t, int64(2), store.saved[1].Timestamp)
	y, ok := store.saved[1].Lookup("y")
	require.True(t, ok)
	assert.Equal(t, "Y", y.Identity, "identities render as host labels")

	store.err = errors.New("disk full")
	runUnit(t, s, 2, bindOp("z", "Z"))
}

func TestStaleReport(t *testing.T) {
	s := New("s1")
	runUnit(t, s, 0, bindOp("x", "0"))
	runUnit(t, s, 1, bindOp("y", "1", "x"))
	runUnit(t, s, 2, bindOp("x", "42"))

	r := s.StaleReport()
	require.Len(t, r.Symbols, 1)
	assert.Equal(t, "y", r.Symbols[0].Name)
	assert.Len(t, s.Snapshot().Symbols, 2)
}
