// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph tracks data dependencies between named values that are
// evaluated incrementally and propagates staleness when inputs change.
//
// The package models three relations over Symbols:
//
//   - dependency edges (parents/children), recorded when a symbol is bound
//     from a set of declared inputs
//   - aliasing, the set of symbols currently bound to one Identity
//   - containment, the members of a namespace scope (the member space of
//     one container value) and the containers that hold them
//
// All three may form cycles. Every traversal keeps a seen-set scoped to the
// top-level call, which is the only termination guarantee.
//
// # Update Protocol
//
// UpsertSymbol binds a name and runs the update protocol on the bound
// symbol:
//
//  1. collect the symbols touched through aliasing and containment
//  2. record them as updated this round
//  3. walk dependency children, marking stale whatever is not exempt, and
//     spread "contains something stale" to enclosing namespaces
//  4. refresh the updated symbol last
//
// # Refresh Protocol
//
// Refresh resets a symbol to authoritative-fresh and heals the namespace
// containers above it, symmetric to how staleness infects them.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. The host drives it from a single
// evaluation loop; exactly one update is in flight at a time. Callers that
// share a Graph across goroutines must serialize access themselves.
//
// # Lifecycle
//
//  1. Create with New()
//  2. Call AdvanceTimestamp() once per evaluation unit
//  3. UpsertSymbol() for every binding the unit produced
//  4. CollectGarbage() at the checkpoint between units
//  5. Query with IsStale(), StaleReasons(), AliasesOf(), NamespaceOf()
package graph
