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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freshtrack_units_total",
		Help: "Evaluation units run, by outcome",
	}, []string{"status"})

	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "freshtrack_unit_duration_seconds",
		Help:    "Time spent applying one evaluation unit",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	missingInputsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshtrack_missing_inputs_total",
		Help: "Input paths that resolved to no symbol",
	})

	staleReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshtrack_stale_reads_total",
		Help: "Stale symbols used as inputs",
	})

	staleSymbols = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "freshtrack_stale_symbols",
		Help: "Stale symbols after the last unit, by session",
	}, []string{"session"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freshtrack_active_sessions",
		Help: "Sessions currently held by the manager",
	})

	corruptSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshtrack_corrupt_sessions_total",
		Help: "Sessions whose graph failed an invariant check",
	})
)
