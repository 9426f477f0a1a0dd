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
	"fmt"
	"strconv"
	"strings"
)

// Timestamp counts evaluation units. It is advanced once per unit by the
// host; zero means no unit has run yet.
type Timestamp int64

// Identity is an opaque token for an underlying value.
//
// The same value reached through different names must map to the same
// Identity. Equivalent values produced independently need not.
type Identity uint64

// NoIdentity marks a symbol that is not bound to a tracked value.
// Symbols with NoIdentity are never filed in the alias table.
const NoIdentity Identity = 0

// String returns the identity as a short hex token.
func (id Identity) String() string {
	if id == NoIdentity {
		return "id:none"
	}
	return fmt.Sprintf("id:%x", uint64(id))
}

// SymbolKind classifies a symbol. The kinds differ in a few localized
// branches: a Function owns a call scope, a Class owns a namespace keyed
// by its identity.
type SymbolKind int

const (
	// KindValue is an ordinary named binding.
	KindValue SymbolKind = iota

	// KindSubscript is an index or key member of a container.
	KindSubscript

	// KindFunction is a function definition.
	KindFunction

	// KindClass is a class definition.
	KindClass
)

var symbolKindNames = map[SymbolKind]string{
	KindValue:     "value",
	KindSubscript: "subscript",
	KindFunction:  "function",
	KindClass:     "class",
}

// String returns the lowercase name of the kind.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseSymbolKind parses the output of SymbolKind.String.
// The empty string parses as KindValue.
func ParseSymbolKind(s string) (SymbolKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "value", "default":
		return KindValue, nil
	case "subscript":
		return KindSubscript, nil
	case "function":
		return KindFunction, nil
	case "class":
		return KindClass, nil
	}
	return KindValue, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Name is a symbol name: an attribute string or an integer index.
type Name struct {
	str     string
	idx     int
	isIndex bool
}

// AttrName returns a string name.
func AttrName(s string) Name {
	return Name{str: s}
}

// IndexName returns an integer name, used for index members.
func IndexName(i int) Name {
	return Name{idx: i, isIndex: true}
}

// IsIndex reports whether the name is an integer index.
func (n Name) IsIndex() bool {
	return n.isIndex
}

// subscriptKey renders n between brackets. A string key that reads as an
// integer is quoted so d['0'] and d[0] stay distinct.
func (n Name) subscriptKey() string {
	if !n.IsIndex() {
		if _, err := strconv.Atoi(n.str); err == nil {
			return "'" + n.str + "'"
		}
	}
	return n.String()
}

// String returns the name as written in a readable path.
func (n Name) String() string {
	if n.isIndex {
		return strconv.Itoa(n.idx)
	}
	return n.str
}

// IsZero reports whether the name is the empty string name.
func (n Name) IsZero() bool {
	return !n.isIndex && n.str == ""
}
