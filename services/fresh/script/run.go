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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/AleutianAI/AleutianFresh/services/fresh/session"
)

// Failure is one unmet expectation.
type Failure struct {
	// UnitID is the unit the expectation belongs to, or -1 for the
	// script level expectations.
	UnitID  int    `json:"unit_id" yaml:"unit_id"`
	Message string `json:"message" yaml:"message"`
}

func (f Failure) String() string {
	if f.UnitID < 0 {
		return "final: " + f.Message
	}
	return fmt.Sprintf("unit %d: %s", f.UnitID, f.Message)
}

// Result is the outcome of a replay.
type Result struct {
	Script   string                 `json:"script" yaml:"script"`
	Units    []*session.UnitResult  `json:"units" yaml:"units"`
	Precheck *session.MultiPrecheck `json:"precheck,omitempty" yaml:"precheck,omitempty"`
	Report   *report.Report         `json:"report" yaml:"report"`
	Failures []Failure              `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// OK reports whether every expectation held.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

// Run replays s into sess and checks its expectations. The returned error
// is for replay problems the script did not expect; unmet expectations
// are reported as Failures.
func Run(ctx context.Context, s *Script, sess *session.Session) (*Result, error) {
	res := &Result{Script: s.Name}

	for _, step := range s.Units {
		if step.Skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		unitRes, err := sess.RunUnit(ctx, step.Unit)
		if unitRes != nil {
			res.Units = append(res.Units, unitRes)
		}
		switch {
		case step.ExpectError != "" && err == nil:
			res.fail(step.ID, "expected error containing %q, unit succeeded", step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			res.fail(step.ID, "expected error containing %q, got %v", step.ExpectError, err)
		case step.ExpectError == "" && err != nil:
			if errors.Is(err, session.ErrCorrupt) {
				return res, err
			}
			return res, fmt.Errorf("unit %d: %w", step.ID, err)
		}
		if step.Expect != nil {
			res.check(step.ID, sess, unitRes, step.Expect)
		}
	}

	if s.Expect != nil {
		res.check(-1, sess, nil, s.Expect)
	}
	if s.ExpectPrecheck != nil {
		pre, err := sess.MultiUnitPrecheck(s.AllUnits())
		if err != nil {
			return res, fmt.Errorf("precheck: %w", err)
		}
		res.Precheck = pre
		res.checkPrecheck(pre, s.ExpectPrecheck)
	}
	res.Report = sess.Snapshot()
	return res, nil
}

func (r *Result) fail(unitID int, format string, args ...any) {
	r.Failures = append(r.Failures, Failure{UnitID: unitID, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) check(unitID int, sess *session.Session, unitRes *session.UnitResult, exp *Expectations) {
	for _, path := range exp.Stale {
		stale, err := sess.IsStale(path)
		switch {
		case err != nil:
			r.fail(unitID, "%s: %v", path, err)
		case !stale:
			r.fail(unitID, "%s: expected stale, is fresh", path)
		}
	}
	for _, path := range exp.Fresh {
		stale, err := sess.IsStale(path)
		switch {
		case err != nil:
			r.fail(unitID, "%s: %v", path, err)
		case stale:
			reasons, _ := sess.StaleReasons(path)
			r.fail(unitID, "%s: expected fresh, is stale (fresher: %s)", path, strings.Join(reasons, ", "))
		}
	}
	for _, path := range exp.Gone {
		if _, err := sess.IsStale(path); !errors.Is(err, session.ErrUnknownSymbol) {
			r.fail(unitID, "%s: expected gone, still bound", path)
		}
	}
	if exp.ExactStale {
		got := sess.StaleReport()
		var names []string
		for _, e := range got.Symbols {
			names = append(names, e.Name)
		}
		if !sameStrings(names, exp.Stale) {
			r.fail(unitID, "stale symbols: expected %v, got %v", sorted(exp.Stale), sorted(names))
		}
	}
	for path, want := range exp.Reasons {
		got, err := sess.StaleReasons(path)
		if err != nil {
			r.fail(unitID, "%s: %v", path, err)
			continue
		}
		if !sameStrings(got, want) {
			r.fail(unitID, "%s: expected reasons %v, got %v", path, sorted(want), got)
		}
	}
	if unitRes != nil {
		if exp.Updated != nil && !sameStrings(unitRes.Updated, exp.Updated) {
			r.fail(unitID, "updated: expected %v, got %v", sorted(exp.Updated), unitRes.Updated)
		}
		if exp.StaleReads != nil && !sameStrings(unitRes.StaleReads, exp.StaleReads) {
			r.fail(unitID, "stale reads: expected %v, got %v", sorted(exp.StaleReads), unitRes.StaleReads)
		}
	}
}

func (r *Result) checkPrecheck(got *session.MultiPrecheck, exp *PrecheckExpectation) {
	if !sameInts(got.StaleInputUnits, exp.StaleInputUnits) {
		r.fail(-1, "stale input units: expected %v, got %v", exp.StaleInputUnits, got.StaleInputUnits)
	}
	if exp.StaleLinks != nil && !sameLinks(got.StaleLinks, exp.StaleLinks) {
		r.fail(-1, "stale links: expected %v, got %v", exp.StaleLinks, got.StaleLinks)
	}
	if exp.RefresherLinks != nil && !sameLinks(got.RefresherLinks, exp.RefresherLinks) {
		r.fail(-1, "refresher links: expected %v, got %v", exp.RefresherLinks, got.RefresherLinks)
	}
}

func sorted(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func sameStrings(a, b []string) bool {
	return reflect.DeepEqual(sorted(a), sorted(b))
}

func sameInts(a, b []int) bool {
	x := append([]int{}, a...)
	y := append([]int{}, b...)
	sort.Ints(x)
	sort.Ints(y)
	return reflect.DeepEqual(x, y)
}

func sameLinks(a, b map[int][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !sameInts(v, b[k]) {
			return false
		}
	}
	return true
}
