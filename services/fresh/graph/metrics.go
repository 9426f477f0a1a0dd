// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for staleness tracking.
var (
	tracer = otel.Tracer("aleutian.fresh.graph")
	meter  = otel.Meter("aleutian.fresh.graph")
)

var (
	upsertTotal      metric.Int64Counter
	updateLatency    metric.Float64Histogram
	symbolsCollected metric.Int64Histogram
	symbolsMarked    metric.Int64Counter
	garbageCollected metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		upsertTotal, err = meter.Int64Counter(
			"fresh_upsert_total",
			metric.WithDescription("Total number of symbol upserts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updateLatency, err = meter.Float64Histogram(
			"fresh_update_duration_seconds",
			metric.WithDescription("Duration of one update protocol invocation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsCollected, err = meter.Int64Histogram(
			"fresh_update_collected_symbols",
			metric.WithDescription("Symbols touched through aliasing and containment per update"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsMarked, err = meter.Int64Counter(
			"fresh_symbols_marked_stale_total",
			metric.WithDescription("Total number of times a symbol was marked stale"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		garbageCollected, err = meter.Int64Counter(
			"fresh_gc_collected_total",
			metric.WithDescription("Total number of symbols removed by garbage collection"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordUpsertMetrics(ctx context.Context, kind SymbolKind, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	upsertTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.Bool("success", success),
	))
}

func recordUpdateMetrics(ctx context.Context, duration time.Duration, collected, marked int, mutated bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("mutated", mutated))
	updateLatency.Record(ctx, duration.Seconds(), attrs)
	symbolsCollected.Record(ctx, int64(collected), attrs)
	if marked > 0 {
		symbolsMarked.Add(ctx, int64(marked))
	}
}

func recordGCMetrics(ctx context.Context, collected int) {
	if err := initMetrics(); err != nil {
		return
	}
	if collected > 0 {
		garbageCollected.Add(ctx, int64(collected))
	}
}

// startUpsertSpan creates a span for an upsert.
func startUpsertSpan(ctx context.Context, b Binding) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph.UpsertSymbol",
		trace.WithAttributes(
			attribute.String("fresh.name", b.Name.String()),
			attribute.String("fresh.kind", b.Kind.String()),
			attribute.Bool("fresh.mutated", b.Mutated),
			attribute.Bool("fresh.overwrite", b.Overwrite),
			attribute.Int("fresh.inputs", len(b.Inputs)),
		),
	)
}

// startUpdateSpan creates a span for one update protocol invocation.
func startUpdateSpan(ctx context.Context, sym *Symbol, mutated, propagate bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph.Update",
		trace.WithAttributes(
			attribute.String("fresh.symbol", sym.ReadableName()),
			attribute.Bool("fresh.mutated", mutated),
			attribute.Bool("fresh.propagate", propagate),
		),
	)
}
