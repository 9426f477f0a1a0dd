// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replay(t *testing.T, s *Script) *Result {
	t.Helper()
	sess := session.New("test", append(s.SessionOptions(), session.WithInvariantChecks(true))...)
	res, err := Run(context.Background(), s, sess)
	require.NoError(t, err)
	return res
}

func TestTestdataScripts(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, path, s.Path())

			res := replay(t, s)
			for _, f := range res.Failures {
				t.Error(f.String())
			}
			assert.True(t, res.OK())
			assert.NotNil(t, res.Report)
		})
	}
}

func TestRun_NotebookPrecheck(t *testing.T) {
	s, err := Load("testdata/notebook.yaml")
	require.NoError(t, err)

	res := replay(t, s)
	require.NotNil(t, res.Precheck)
	assert.Equal(t, []int{3}, res.Precheck.StaleInputUnits)
	assert.Len(t, res.Units, 3, "skipped units are not run")
}

func TestRun_ReportsFailures(t *testing.T) {
	s, err := Parse([]byte(`
name: wrong
units:
  - id: 0
    ops:
      - {op: bind, target: x, value: a}
      - {op: bind, target: y, inputs: [x]}
    expect:
      stale: [y]
      fresh: [nope]
      updated: [x]
  - id: 1
    ops:
      - {op: bind, target: z, value: z}
    expect_error: boom
expect:
  reasons: {y: [x]}
  gone: [x]
expect_precheck:
  stale_input_units: [0]
`))
	require.NoError(t, err)

	res := replay(t, s)
	assert.False(t, res.OK())

	var msgs []string
	for _, f := range res.Failures {
		msgs = append(msgs, f.String())
	}
	assert.Contains(t, msgs, "unit 0: y: expected stale, is fresh")
	assert.Contains(t, msgs, "unit 0: updated: expected [x], got [x y]")
	assert.Contains(t, msgs, `unit 1: expected error containing "boom", unit succeeded`)
	assert.Contains(t, msgs, "final: x: expected gone, still bound")
	assert.Contains(t, msgs, "final: y: expected reasons [x], got []")
	assert.Contains(t, msgs, "final: stale input units: expected [0], got []")
	assert.Len(t, msgs, 7)
}

func TestRun_UnexpectedError(t *testing.T) {
	s, err := Parse([]byte(`
name: broken
units:
  - id: 0
    ops:
      - {op: delete, target: ghost}
`))
	require.NoError(t, err)

	sess := session.New("test")
	res, err := Run(context.Background(), s, sess)
	assert.ErrorIs(t, err, session.ErrUnknownSymbol)
	require.NotNil(t, res)
	assert.Len(t, res.Units, 1)
}

func TestRun_CancelledContext(t *testing.T) {
	s, err := Load("testdata/notebook.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, s, session.New("test"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"no name":        "units:\n  - id: 0\n    ops: []\n",
		"no units":       "name: x\nunits: []\n",
		"unknown key":    "name: x\ncolor: blue\nunits:\n  - id: 0\n",
		"duplicate id":   "name: x\nunits:\n  - id: 0\n  - id: 0\n",
		"bad op":         "name: x\nunits:\n  - id: 0\n    ops:\n      - {op: frob, target: x}\n",
		"negative id":    "name: x\nunits:\n  - id: -2\n",
		"missing target": "name: x\nunits:\n  - id: 0\n    ops:\n      - {op: bind}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}

	_, err := Load("testdata/absent.yaml")
	assert.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	s, err := Parse([]byte("name: x\nunits:\n  - id: 0\n"))
	require.NoError(t, err)
	assert.Nil(t, s.SessionOptions())

	s, err = Parse([]byte("name: x\nsame_unit_exemption: false\nunits:\n  - id: 0\n"))
	require.NoError(t, err)
	assert.Len(t, s.SessionOptions(), 1)
	assert.Len(t, s.AllUnits(), 1)
}
