// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads freshtrack configuration from YAML.
//
// Values not present in the file keep their DefaultConfig value, so a
// config file only needs the settings it changes:
//
//	graph:
//	  same_unit_exemption: false
//	logging:
//	  level: debug
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianFresh/pkg/logging"
	"github.com/AleutianAI/AleutianFresh/services/fresh/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the top level freshtrack configuration.
type Config struct {
	Graph     GraphConfig      `yaml:"graph"`
	Logging   LoggingConfig    `yaml:"logging"`
	Storage   StorageConfig    `yaml:"storage"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// GraphConfig configures the staleness graph of each session.
type GraphConfig struct {
	// SameUnitExemption suppresses staleness between two symbols both
	// defined in the current unit.
	SameUnitExemption bool `yaml:"same_unit_exemption"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level   logging.Level `yaml:"level"`
	LogDir  string        `yaml:"log_dir"`
	JSON    bool          `yaml:"json"`
	Service string        `yaml:"service" validate:"required"`
}

// StorageConfig configures the snapshot store.
type StorageConfig struct {
	// Enabled turns snapshot persistence on.
	Enabled bool `yaml:"enabled"`

	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path" validate:"required_without=InMemory"`

	// InMemory keeps snapshots in memory only.
	InMemory bool `yaml:"in_memory"`

	// GCIntervalSeconds is how often badger value log GC runs. Zero
	// disables it.
	GCIntervalSeconds int `yaml:"gc_interval_seconds" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Graph: GraphConfig{SameUnitExemption: true},
		Logging: LoggingConfig{
			Level:   logging.LevelInfo,
			Service: "freshtrack",
		},
		Storage: StorageConfig{
			Path:              "~/.aleutian/fresh/snapshots",
			GCIntervalSeconds: 300,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 12250,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath returns ~/.aleutian/fresh/freshtrack.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "fresh", "freshtrack.yaml"), nil
}

// Load reads path over DefaultConfig and validates the result. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoggerConfig converts the logging section into a logging.Config.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:   c.Logging.Level,
		LogDir:  c.Logging.LogDir,
		Service: c.Logging.Service,
		JSON:    c.Logging.JSON,
	}
}
