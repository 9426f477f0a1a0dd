// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/AleutianFresh/pkg/ux"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned by ParseFormat and Render.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat parses "text", "json" or "yaml". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Render writes r to w in the given format.
func Render(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatText, "":
		return renderText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func renderText(w io.Writer, r *Report) error {
	st := ux.NewStyles(w)
	var b strings.Builder

	header := fmt.Sprintf("unit %d", r.Timestamp)
	if r.SessionID != "" {
		header = fmt.Sprintf("session %s, %s", r.SessionID, header)
	}
	b.WriteString(st.Title.Render(header))
	b.WriteString("  ")
	if r.StaleCount == 0 {
		b.WriteString(st.Success.Render("no stale symbols"))
	} else {
		b.WriteString(st.Warning.Render(fmt.Sprintf("%d stale", r.StaleCount)))
	}
	b.WriteString("\n")

	for _, e := range r.Symbols {
		if e.Stale {
			b.WriteString(st.Warning.Render(string(ux.IconError) + " "))
		} else {
			b.WriteString(st.Success.Render(string(ux.IconSuccess) + " "))
		}
		b.WriteString(st.Bold.Render(e.Name))
		b.WriteString(st.Muted.Render(fmt.Sprintf("  %s %s defined=%d required=%d", e.Kind, e.Identity, e.DefinedAt, e.RequiredAt)))
		if len(e.Reasons) > 0 {
			b.WriteString("  fresher: ")
			b.WriteString(strings.Join(e.Reasons, ", "))
		}
		if len(e.Aliases) > 0 {
			b.WriteString(st.Muted.Render("  aliases: " + strings.Join(e.Aliases, ", ")))
		}
		b.WriteString("\n")
	}

	if len(r.Updated) > 0 {
		b.WriteString(st.Muted.Render("updated: " + strings.Join(r.Updated, ", ")))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
