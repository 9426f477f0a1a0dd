// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/AleutianAI/AleutianFresh/services/fresh/script"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testdata = "../../services/fresh/script/testdata"

func writeConfig(t *testing.T, storageDir string) string {
	t.Helper()
	cfg := "logging:\n  level: error\n  service: freshtrack-test\n"
	if storageDir != "" {
		cfg += fmt.Sprintf("storage:\n  enabled: true\n  path: %s\n  gc_interval_seconds: 0\n", storageDir)
	}
	path := filepath.Join(t.TempDir(), "freshtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplay_Text(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "replay", "--config", cfg,
		filepath.Join(testdata, "notebook.yaml"),
		filepath.Join(testdata, "containers.yaml"),
		filepath.Join(testdata, "mutation.yaml"),
	)
	require.NoError(t, err, out)

	nb := strings.Index(out, "== notebook")
	ct := strings.Index(out, "== containers")
	mu := strings.Index(out, "== mutation")
	require.True(t, nb >= 0 && ct >= 0 && mu >= 0, out)
	assert.True(t, nb < ct && ct < mu, "results keep argument order")
	assert.NotContains(t, out, "FAIL")
}

func TestReplay_JSON(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "replay", "--config", cfg, "--json",
		filepath.Join(testdata, "notebook.yaml"),
		filepath.Join(testdata, "mutation.yaml"),
	)
	require.NoError(t, err)

	var results []script.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 2)
	assert.Equal(t, "notebook", results[0].Script)
	assert.Empty(t, results[0].Failures)
	require.NotNil(t, results[0].Report)
	entry, ok := results[0].Report.Lookup("y")
	require.True(t, ok)
	assert.True(t, entry.Stale)
}

func TestReplay_FailedExpectations(t *testing.T) {
	cfg := writeConfig(t, "")
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
units:
  - id: 0
    ops:
      - {op: bind, target: x, value: a}
expect:
  stale: [x]
`), 0o644))

	out, err := execute(t, "replay", "--config", cfg, path)
	assert.ErrorIs(t, err, errExpectationsFailed)
	assert.Contains(t, out, "FAIL final: x: expected stale, is fresh")
}

func TestReplay_Errors(t *testing.T) {
	cfg := writeConfig(t, "")
	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("name: x\nbogus: 1\nunits:\n  - id: 0\n"), 0o644))

	_, err := execute(t, "replay", "--config", cfg, invalid)
	assert.ErrorIs(t, err, script.ErrInvalidScript)

	_, err = execute(t, "replay", "--config", cfg)
	assert.Error(t, err, "at least one script is required")

	_, err = execute(t, "replay", "--config", cfg, "--format", "xml", filepath.Join(testdata, "notebook.yaml"))
	assert.ErrorIs(t, err, report.ErrUnknownFormat)

	_, err = execute(t, "replay", "--config", cfg, "--log-level", "loud", filepath.Join(testdata, "notebook.yaml"))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	cfg := writeConfig(t, "")
	nb := filepath.Join(testdata, "notebook.yaml")

	out, err := execute(t, "check", "--config", cfg, "--format", "json", nb)
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	assert.Equal(t, 1, rep.StaleCount)
	require.Len(t, rep.Symbols, 1)
	assert.Equal(t, "y", rep.Symbols[0].Name)

	_, err = execute(t, "check", "--config", cfg, "--fail-on-stale", nb)
	assert.Error(t, err)
}

func TestSnapshots(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	_, err := execute(t, "replay", "--config", cfg, filepath.Join(testdata, "notebook.yaml"))
	require.NoError(t, err)

	out, err := execute(t, "snapshots", "--config", cfg)
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 1)
	assert.True(t, strings.HasPrefix(ids[0], "notebook-"))

	out, err = execute(t, "snapshots", "--config", cfg, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, strings.Fields(out))

	out, err = execute(t, "snapshots", "--config", cfg, "--json", "--latest", ids[0])
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, int64(3), rep.Timestamp)
	assert.Equal(t, 1, rep.StaleCount)

	out, err = execute(t, "snapshots", "--config", cfg, "--at", "1", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, "x")

	out, err = execute(t, "snapshots", "--config", cfg, "--delete", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 3 snapshots")

	_, err = execute(t, "snapshots", "--config", cfg, ids[0])
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	a := &app{}
	cmd := newRootCmd()
	cmd.SetErr(&bytes.Buffer{})
	a.configPath = writeConfig(t, "")
	require.NoError(t, a.setup(cmd))
	defer a.logger.Close()

	srv := a.newServer(session.NewManager(a.sessionOptions(nil)...))
	assert.Equal(t, "127.0.0.1:12250", srv.Addr)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/fresh/health", nil)
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
