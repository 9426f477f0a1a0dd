// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianFresh/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Graph.SameUnitExemption)
	assert.Equal(t, "127.0.0.1:12250", cfg.Server.Addr())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	path := filepath.Join(t.TempDir(), "fresh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
graph:
  same_unit_exemption: false
logging:
  level: debug
server:
  port: 9000
storage:
  enabled: true
  in_memory: true
  path: ""
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Graph.SameUnitExemption)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "freshtrack", cfg.Logging.Service)
	assert.True(t, cfg.Storage.InMemory)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("graph: [\n"), 0644))
	_, err := Load(bad)
	assert.Error(t, err)

	level := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(level, []byte("logging:\n  level: loud\n"), 0644))
	_, err = Load(level)
	assert.Error(t, err)

	port := filepath.Join(dir, "port.yaml")
	require.NoError(t, os.WriteFile(port, []byte("server:\n  port: 70000\n"), 0644))
	_, err = Load(port)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Port")
}

func TestValidate(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service", func(c *Config) { c.Logging.Service = "" }},
		{"storage without path", func(c *Config) { c.Storage.Path = "" }},
		{"negative gc interval", func(c *Config) { c.Storage.GCIntervalSeconds = -1 }},
		{"unknown trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"otlp without endpoint", func(c *Config) {
			c.Telemetry.TraceExporter = "otlp"
			c.Telemetry.OTLPEndpoint = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	path := filepath.Join(t.TempDir(), "nested", "fresh.yaml")
	cfg := DefaultConfig()
	cfg.Graph.SameUnitExemption = false
	cfg.Logging.Level = logging.LevelWarn

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Graph.SameUnitExemption)
	assert.Equal(t, logging.LevelWarn, loaded.Logging.Level)
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.JSON = true
	lc := cfg.LoggerConfig()
	assert.Equal(t, "freshtrack", lc.Service)
	assert.True(t, lc.JSON)
}
