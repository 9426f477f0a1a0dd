// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session drives a staleness graph from host events.
//
// A host (a notebook kernel, a REPL, a replayed script) reports what each
// evaluation unit did as a list of ops: names bound to labelled values,
// values mutated in place or released, bindings deleted, symbols read.
// The session translates ops into graph upserts and answers staleness
// questions by symbol path.
//
// # Thread Safety
//
// Session and Manager are safe for concurrent use. Each session owns one
// graph and serializes access to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/AleutianAI/AleutianFresh/services/fresh/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "aleutian.fresh.session"

// SnapshotStore persists a report of the session after every unit.
type SnapshotStore interface {
	Save(ctx context.Context, snap *report.Report) error
}

type options struct {
	graphOpts       []graph.Option
	logger          *slog.Logger
	store           SnapshotStore
	checkInvariants bool
}

// Option configures a Session.
type Option func(*options)

// WithGraphOptions passes options to every graph the session creates.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) { o.graphOpts = append(o.graphOpts, opts...) }
}

// WithLogger sets the session logger. The graph logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSnapshotStore persists a snapshot after every unit.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(o *options) { o.store = store }
}

// WithInvariantChecks runs graph.CheckInvariants after every unit.
func WithInvariantChecks(enabled bool) Option {
	return func(o *options) { o.checkInvariants = enabled }
}

// Session is one tracked program state.
type Session struct {
	id      string
	created time.Time
	opts    options
	logger  *slog.Logger

	mu      sync.Mutex
	g       *graph.Graph
	labels  *labels
	corrupt error
	units   int
}

// New creates a session with the given ID.
func New(id string, opts ...Option) *Session {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		id:      id,
		created: time.Now(),
		opts:    o,
		logger:  o.logger.With(slog.String("session_id", id)),
	}
	s.reset()
	return s
}

func (s *Session) reset() {
	gopts := append([]graph.Option{graph.WithLogger(s.logger)}, s.opts.graphOpts...)
	s.g = graph.New(gopts...)
	s.labels = newLabels()
	s.corrupt = nil
	s.units = 0
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Created returns when the session was created.
func (s *Session) Created() time.Time { return s.created }

// Units returns how many units ran since creation or the last Rebuild.
func (s *Session) Units() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units
}

// Rebuild discards the graph and starts over. It is the only way out of
// ErrCorrupt.
func (s *Session) Rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Warn("rebuilding session graph", slog.Int("units_discarded", s.units))
	s.reset()
}

// RunUnit applies u as the next evaluation unit.
//
// Ops run in order. If an op fails, the ops before it stay applied and the
// partial result is returned with the error, the way a host reports a unit
// that raised midway. An invariant violation marks the session corrupt.
func (s *Session) RunUnit(ctx context.Context, u Unit) (*UnitResult, error) {
	if err := u.Validate(); err != nil {
		unitsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupt != nil {
		unitsTotal.WithLabelValues("refused").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, s.corrupt)
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "Session.RunUnit",
		trace.WithAttributes(
			attribute.String("fresh.session_id", s.id),
			attribute.Int("fresh.unit_id", u.ID),
			attribute.Int("fresh.ops", len(u.Ops)),
		),
	)
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, s.logger)
	start := time.Now()

	ts := s.g.AdvanceTimestamp()
	s.units++
	res := &UnitResult{UnitID: u.ID, Timestamp: int64(ts)}

	var opErr error
	for i, op := range u.Ops {
		if err := s.apply(ctx, op, res, logger); err != nil {
			opErr = fmt.Errorf("unit %d op %d (%s %s): %w", u.ID, i, op.Kind, op.Target, err)
			break
		}
	}

	if opErr == nil || !errors.Is(opErr, graph.ErrInvariantViolation) {
		collected, err := s.g.CollectGarbage(ctx)
		res.Collected = collected
		if err != nil && opErr == nil {
			opErr = fmt.Errorf("unit %d checkpoint: %w", u.ID, err)
		}
	}
	if opErr == nil && s.opts.checkInvariants {
		if err := s.g.CheckInvariants(); err != nil {
			opErr = fmt.Errorf("unit %d: %w", u.ID, err)
		}
	}

	res.Updated = report.Names(s.g.UpdatedThisRound().Sorted())
	res.Stale = s.staleNames()
	res.StaleReads = dedupeSorted(res.StaleReads)
	res.MissingInputs = dedupeSorted(res.MissingInputs)

	staleSymbols.WithLabelValues(s.id).Set(float64(len(res.Stale)))
	missingInputsTotal.Add(float64(len(res.MissingInputs)))
	staleReadsTotal.Add(float64(len(res.StaleReads)))
	unitDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("fresh.updated", len(res.Updated)),
		attribute.Int("fresh.stale", len(res.Stale)),
	)

	if opErr != nil {
		telemetry.RecordError(span, opErr)
		if errors.Is(opErr, graph.ErrInvariantViolation) {
			s.corrupt = opErr
			corruptSessionsTotal.Inc()
			unitsTotal.WithLabelValues("corrupt").Inc()
			logger.Error("session graph corrupt", slog.Int("unit", u.ID), slog.String("error", opErr.Error()))
			return res, fmt.Errorf("%w: %v", ErrCorrupt, opErr)
		}
		unitsTotal.WithLabelValues("error").Inc()
		logger.Warn("unit failed", slog.Int("unit", u.ID), slog.String("error", opErr.Error()))
		return res, opErr
	}

	unitsTotal.WithLabelValues("ok").Inc()
	logger.Info("unit applied",
		slog.Int("unit", u.ID),
		slog.Int64("timestamp", res.Timestamp),
		slog.Int("updated", len(res.Updated)),
		slog.Int("stale", len(res.Stale)),
	)

	if s.opts.store != nil {
		if err := s.opts.store.Save(ctx, s.snapshot()); err != nil {
			logger.Warn("snapshot not saved", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func (s *Session) apply(ctx context.Context, op Op, res *UnitResult, logger *slog.Logger) error {
	switch op.Kind {
	case OpBind:
		return s.applyBind(ctx, op, res, logger)
	case OpMutate:
		return s.applyMutate(ctx, op, res, logger)
	case OpRelease:
		return s.applyRelease(op, res)
	case OpDelete:
		sym, err := s.lookup(op.Target)
		if err != nil {
			return err
		}
		return s.g.Delete(sym)
	case OpRead:
		s.resolveInputs(op.Inputs, res, logger)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, op.Kind)
}

func (s *Session) applyBind(ctx context.Context, op Op, res *UnitResult, logger *slog.Logger) error {
	path, err := ParsePath(op.Target)
	if err != nil {
		return err
	}
	inputs := s.resolveInputs(op.Inputs, res, logger)

	kind, err := graph.ParseSymbolKind(op.SymbolKind)
	if err != nil {
		return err
	}
	if path.IsSubscript() {
		kind = graph.KindSubscript
	}

	var instanceOf *graph.Symbol
	if op.InstanceOf != "" {
		if instanceOf, err = s.lookup(op.InstanceOf); err != nil {
			return err
		}
		s.noteRead(instanceOf, res)
		inputs = append(inputs, instanceOf)
	}

	scope, last, err := bindTarget(s.g, path)
	if err != nil {
		return err
	}
	_, err = s.g.UpsertSymbol(ctx, graph.Binding{
		Name:       last.name,
		Identity:   s.labels.forBind(op.Value),
		Inputs:     inputs,
		Scope:      scope,
		Kind:       kind,
		Overwrite:  !op.Append,
		Args:       op.Args,
		InstanceOf: instanceOf,
	})
	return err
}

// applyMutate re-upserts every alias of the mutated value, so each alias
// picks up the new inputs and the change reaches every container.
func (s *Session) applyMutate(ctx context.Context, op Op, res *UnitResult, logger *slog.Logger) error {
	inputs := s.resolveInputs(op.Inputs, res, logger)

	var target *graph.Symbol
	var id graph.Identity
	if op.Target != "" {
		sym, err := s.lookup(op.Target)
		if err != nil {
			return err
		}
		s.noteRead(sym, res)
		target, id = sym, sym.Identity()
	} else {
		known, ok := s.labels.lookup(op.Value)
		if !ok {
			return fmt.Errorf("%w: no value labelled %q", ErrUnknownSymbol, op.Value)
		}
		id = known
	}

	var aliases []*graph.Symbol
	if id != graph.NoIdentity {
		aliases = s.g.AliasesOf(id).Sorted()
	}
	if len(aliases) == 0 && target != nil {
		aliases = []*graph.Symbol{target}
	}
	if len(aliases) == 0 {
		return fmt.Errorf("%w: value %q has no bindings", ErrUnknownSymbol, op.Value)
	}

	for _, alias := range aliases {
		if alias.IsGarbage() {
			continue
		}
		if _, err := s.g.UpsertSymbol(ctx, graph.Binding{
			Name:     alias.Name(),
			Identity: id,
			Inputs:   inputs,
			Scope:    alias.Scope(),
			Kind:     alias.Kind(),
			Mutated:  true,
		}); err != nil {
			return fmt.Errorf("mutate %s: %w", alias.ReadableName(), err)
		}
	}
	return nil
}

func (s *Session) applyRelease(op Op, res *UnitResult) error {
	var id graph.Identity
	if op.Value != "" {
		known, ok := s.labels.lookup(op.Value)
		if !ok {
			return fmt.Errorf("%w: no value labelled %q", ErrUnknownSymbol, op.Value)
		}
		id = known
	} else {
		sym, err := s.lookup(op.Target)
		if err != nil {
			return err
		}
		id = sym.Identity()
	}
	if id == graph.NoIdentity {
		return nil
	}
	res.Released += s.g.OnValueReleased(id)
	s.labels.retire(id)
	return nil
}

// resolveInputs resolves paths, skipping and recording the missing ones
// and recording stale ones as stale reads.
func (s *Session) resolveInputs(paths []string, res *UnitResult, logger *slog.Logger) []*graph.Symbol {
	var out []*graph.Symbol
	for _, raw := range paths {
		path, err := ParsePath(raw)
		if err != nil {
			logger.Debug("input skipped", slog.String("input", raw), slog.String("error", err.Error()))
			res.MissingInputs = append(res.MissingInputs, raw)
			continue
		}
		sym, ok := resolvePath(s.g, path)
		if !ok {
			logger.Debug("input not tracked", slog.String("input", raw))
			res.MissingInputs = append(res.MissingInputs, raw)
			continue
		}
		s.noteRead(sym, res)
		out = append(out, sym)
	}
	return out
}

func (s *Session) noteRead(sym *graph.Symbol, res *UnitResult) {
	if s.g.IsStale(sym) {
		res.StaleReads = append(res.StaleReads, sym.ReadableName())
	}
}

func (s *Session) lookup(raw string) (*graph.Symbol, error) {
	path, err := ParsePath(raw)
	if err != nil {
		return nil, err
	}
	sym, ok := resolvePath(s.g, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, raw)
	}
	return sym, nil
}

// IsStale reports whether the symbol at path is stale.
func (s *Session) IsStale(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, err := s.lookup(path)
	if err != nil {
		return false, err
	}
	return s.g.IsStale(sym), nil
}

// StaleReasons returns the readable names of the symbols that made the
// symbol at path stale, sorted.
func (s *Session) StaleReasons(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return report.Names(s.g.StaleReasons(sym)), nil
}

// Symbol describes the symbol at path.
func (s *Session) Symbol(path string) (report.SymbolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, err := s.lookup(path)
	if err != nil {
		return report.SymbolEntry{}, err
	}
	entry, ok := s.snapshot().Lookup(sym.ReadableName())
	if !ok {
		return report.SymbolEntry{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, path)
	}
	return entry, nil
}

// Snapshot reports every live symbol of the session.
func (s *Session) Snapshot() *report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// StaleReport reports only the stale symbols.
func (s *Session) StaleReport() *report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return report.Build(s.g, report.WithSessionID(s.id), report.WithLabeler(s.labels.label))
}

func (s *Session) snapshot() *report.Report {
	return report.Build(s.g, report.WithAll(), report.WithSessionID(s.id), report.WithLabeler(s.labels.label))
}

func (s *Session) staleNames() []string {
	var out []string
	for _, sym := range s.g.Symbols() {
		if !sym.IsGarbage() && s.g.IsStale(sym) {
			out = append(out, sym.ReadableName())
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
