// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package script reads and replays YAML session scripts.
//
// A script is a recorded sequence of evaluation units plus the staleness
// the replay is expected to produce:
//
//	name: notebook
//	units:
//	  - id: 0
//	    ops:
//	      - {op: bind, target: x, value: zero}
//	  - id: 1
//	    ops:
//	      - {op: bind, target: y, inputs: [x]}
//	  - id: 2
//	    ops:
//	      - {op: bind, target: x, value: forty-two}
//	    expect:
//	      stale: [y]
//	      reasons: {y: [x]}
//	  - id: 3
//	    skip: true
//	    ops:
//	      - {op: read, inputs: [y]}
//	expect_precheck:
//	  stale_input_units: [3]
//	  stale_links: {3: [1]}
//
// Skipped units are not run but take part in the final multi-unit
// precheck.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScript wraps parse and validation failures.
var ErrInvalidScript = errors.New("invalid script")

var validate = validator.New()

// Script is a parsed session script.
type Script struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`

	// SameUnitExemption overrides the configured graph option when set.
	SameUnitExemption *bool `yaml:"same_unit_exemption,omitempty"`

	Units []Step `yaml:"units" validate:"required,min=1,dive"`

	// Expect is checked after the last unit.
	Expect *Expectations `yaml:"expect,omitempty"`

	// ExpectPrecheck is checked against a multi-unit precheck of every
	// unit after the last unit ran.
	ExpectPrecheck *PrecheckExpectation `yaml:"expect_precheck,omitempty"`

	path string
}

// Step is one unit of a script.
type Step struct {
	session.Unit `yaml:",inline"`

	// Skip defines the unit without running it.
	Skip bool `yaml:"skip,omitempty"`

	// Expect is checked right after the unit runs.
	Expect *Expectations `yaml:"expect,omitempty"`

	// ExpectError is a substring the unit's error must contain. A unit
	// with ExpectError must fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expectations are checked against the session after a unit.
type Expectations struct {
	// Stale symbols must be stale.
	Stale []string `yaml:"stale,omitempty"`

	// Fresh symbols must exist and not be stale.
	Fresh []string `yaml:"fresh,omitempty"`

	// ExactStale requires Stale to be every stale symbol.
	ExactStale bool `yaml:"exact_stale,omitempty"`

	// Updated, if set, must equal the unit's updated symbols.
	Updated []string `yaml:"updated,omitempty"`

	// StaleReads, if set, must equal the stale symbols the unit read.
	StaleReads []string `yaml:"stale_reads,omitempty"`

	// Reasons maps a symbol to its exact stale reasons.
	Reasons map[string][]string `yaml:"reasons,omitempty"`

	// Gone symbols must no longer resolve.
	Gone []string `yaml:"gone,omitempty"`
}

// PrecheckExpectation is compared with session.MultiPrecheck. Nil fields
// are not checked.
type PrecheckExpectation struct {
	StaleInputUnits []int         `yaml:"stale_input_units"`
	StaleLinks      map[int][]int `yaml:"stale_links,omitempty"`
	RefresherLinks  map[int][]int `yaml:"refresher_links,omitempty"`
}

// Path returns the file the script was loaded from, if any.
func (s *Script) Path() string { return s.path }

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Parse parses and validates a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields, unit IDs and every op.
func (s *Script) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	ids := make(map[int]bool, len(s.Units))
	for _, step := range s.Units {
		if ids[step.ID] {
			return fmt.Errorf("%w: duplicate unit id %d", ErrInvalidScript, step.ID)
		}
		ids[step.ID] = true
		if err := step.Unit.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	}
	return nil
}

// SessionOptions returns the session options the script asks for.
func (s *Script) SessionOptions() []session.Option {
	if s.SameUnitExemption == nil {
		return nil
	}
	return []session.Option{session.WithGraphOptions(graph.WithSameUnitExemption(*s.SameUnitExemption))}
}

// AllUnits returns every unit of the script, skipped ones included.
func (s *Script) AllUnits() []session.Unit {
	out := make([]session.Unit, 0, len(s.Units))
	for _, step := range s.Units {
		out = append(out, step.Unit)
	}
	return out
}
