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
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// OpKind names what an op does to the graph.
type OpKind string

const (
	// OpBind binds Target to the value labelled Value, computed from
	// Inputs.
	OpBind OpKind = "bind"

	// OpMutate changes the value named by Target (or labelled Value) in
	// place, with Inputs as extra dependencies.
	OpMutate OpKind = "mutate"

	// OpRelease reports that the value labelled Value (or bound to
	// Target) no longer exists.
	OpRelease OpKind = "release"

	// OpDelete drops the binding Target.
	OpDelete OpKind = "delete"

	// OpRead uses Inputs without binding anything.
	OpRead OpKind = "read"
)

// Op is one host event within a unit.
type Op struct {
	Kind OpKind `yaml:"op" json:"op" validate:"required,oneof=bind mutate release delete read"`

	// Target is a symbol path: x, obj.attr, d[foo], lst[0].
	Target string `yaml:"target,omitempty" json:"target,omitempty"`

	// Value labels the bound value. Equal labels are the same value, so
	// binding two names to one label makes them aliases. Empty binds a
	// fresh value.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// Inputs are the symbol paths the value was computed from or that the
	// op reads. Paths that resolve to nothing are skipped.
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// SymbolKind is value, function or class. Subscript targets are
	// always subscripts.
	SymbolKind string `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=value default subscript function class"`

	// Args names the parameters of a function.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// InstanceOf is the path of the class the value instantiates.
	InstanceOf string `yaml:"instance_of,omitempty" json:"instance_of,omitempty"`

	// Append keeps the target's existing dependencies and adds Inputs to
	// them instead of replacing them.
	Append bool `yaml:"append,omitempty" json:"append,omitempty"`
}

// Validate checks the fields each kind needs.
func (o Op) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Kind" && o.Kind != "" {
			return fmt.Errorf("%w: %q", ErrUnknownOp, o.Kind)
		}
		return fmt.Errorf("%w: %v", ErrInvalidOp, err)
	}
	switch o.Kind {
	case OpBind, OpDelete:
		if o.Target == "" {
			return fmt.Errorf("%w: %s needs a target", ErrInvalidOp, o.Kind)
		}
	case OpMutate, OpRelease:
		if o.Target == "" && o.Value == "" {
			return fmt.Errorf("%w: %s needs a target or a value", ErrInvalidOp, o.Kind)
		}
	case OpRead:
		if len(o.Inputs) == 0 {
			return fmt.Errorf("%w: read needs inputs", ErrInvalidOp)
		}
	}
	return nil
}

// reads returns every path the op reads.
func (o Op) reads() []string {
	out := append([]string(nil), o.Inputs...)
	if o.Kind == OpMutate && o.Target != "" {
		out = append(out, o.Target)
	}
	if o.InstanceOf != "" {
		out = append(out, o.InstanceOf)
	}
	return out
}

// Unit is one evaluation unit: a batch of ops sharing a timestamp.
type Unit struct {
	// ID identifies the unit for multi-unit precheck.
	ID  int  `yaml:"id" json:"id" validate:"gte=0"`
	Ops []Op `yaml:"ops" json:"ops"`
}

// Validate validates every op.
func (u Unit) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: unit %d: %v", ErrInvalidOp, u.ID, err)
	}
	for i, op := range u.Ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("unit %d op %d: %w", u.ID, i, err)
		}
	}
	return nil
}

// UnitResult reports what running a unit did.
type UnitResult struct {
	UnitID    int   `json:"unit_id" yaml:"unit_id"`
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`

	// Updated holds the symbols updated by the unit, sorted.
	Updated []string `json:"updated" yaml:"updated"`

	// StaleReads holds stale symbols the unit used as inputs.
	StaleReads []string `json:"stale_reads,omitempty" yaml:"stale_reads,omitempty"`

	// MissingInputs holds input paths that resolved to nothing.
	MissingInputs []string `json:"missing_inputs,omitempty" yaml:"missing_inputs,omitempty"`

	// Released counts symbols tombstoned by release ops.
	Released int `json:"released" yaml:"released"`

	// Collected counts symbols removed at the end-of-unit checkpoint.
	Collected int `json:"collected" yaml:"collected"`

	// Stale holds every stale symbol after the unit, sorted.
	Stale []string `json:"stale" yaml:"stale"`
}
