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

import "log/slog"

// options holds Graph configuration.
type options struct {
	sameUnitExemption bool
	logger            *slog.Logger
}

func defaultOptions() options {
	return options{
		sameUnitExemption: true,
		logger:            slog.New(slog.DiscardHandler),
	}
}

// Option configures a Graph.
type Option func(o *options)

// WithSameUnitExemption toggles the same-unit exemption. When enabled
// (the default), a dependent defined in the current unit is not marked
// stale by a change to an input also defined in the current unit.
func WithSameUnitExemption(enabled bool) Option {
	return func(o *options) {
		o.sameUnitExemption = enabled
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
