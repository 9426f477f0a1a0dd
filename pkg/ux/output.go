// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the freshtrack CLI.
package ux

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, fresh
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - titles
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	ColorSuccess = ColorTealBright
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber - stale
	ColorError   = lipgloss.Color("#E74C3C") // Red - failures
	ColorMuted   = ColorSlate
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Styles are the palette bound to one writer. Color and bold are dropped
// when the writer is not a terminal, so output piped to a file or a test
// buffer stays plain text.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles returns the styles for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(ColorTealPrimary),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Error:   r.NewStyle().Foreground(ColorError),
	}
}

// Icon renders i in the color that goes with it.
func (s Styles) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return s.Success.Render(string(i))
	case IconWarning:
		return s.Warning.Render(string(i))
	case IconError:
		return s.Error.Render(string(i))
	default:
		return string(i)
	}
}
