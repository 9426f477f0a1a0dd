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
	"strconv"

	"github.com/AleutianAI/AleutianFresh/services/fresh/graph"
	"github.com/minio/highwayhash"
)

var labelKey = []byte("aleutian-fresh-identity-labels!!")

// labels maps host value labels to graph identities. A label names one
// value until that value is released; binding the label again afterwards
// names a new value.
type labels struct {
	generation map[string]int
	byIdentity map[graph.Identity]string
	byLabel    map[string]graph.Identity
	anonymous  int
}

func newLabels() *labels {
	return &labels{
		generation: make(map[string]int),
		byIdentity: make(map[graph.Identity]string),
		byLabel:    make(map[string]graph.Identity),
	}
}

// forBind returns the identity for label, minting one on first use. An
// empty label mints a fresh anonymous value.
func (l *labels) forBind(label string) graph.Identity {
	if label == "" {
		l.anonymous++
		return l.mint("\x00anon:"+strconv.Itoa(l.anonymous), "")
	}
	if id, ok := l.byLabel[label]; ok {
		return id
	}
	seed := label + "\x00" + strconv.Itoa(l.generation[label])
	id := l.mint(seed, label)
	l.byLabel[label] = id
	return id
}

// lookup returns the current identity of label.
func (l *labels) lookup(label string) (graph.Identity, bool) {
	id, ok := l.byLabel[label]
	return id, ok
}

// label returns the label of id, or "" for anonymous values.
func (l *labels) label(id graph.Identity) string {
	return l.byIdentity[id]
}

// retire forgets the value currently named by the label of id.
func (l *labels) retire(id graph.Identity) {
	label, ok := l.byIdentity[id]
	delete(l.byIdentity, id)
	if !ok || label == "" {
		return
	}
	if l.byLabel[label] == id {
		delete(l.byLabel, label)
		l.generation[label]++
	}
}

// mint hashes seed to a non-zero identity not yet in use.
func (l *labels) mint(seed, label string) graph.Identity {
	for attempt := 0; ; attempt++ {
		data := []byte(seed)
		if attempt > 0 {
			data = append(data, "\x00"+strconv.Itoa(attempt)...)
		}
		id := graph.Identity(highwayhash.Sum64(data, labelKey))
		if id == graph.NoIdentity {
			continue
		}
		if _, taken := l.byIdentity[id]; taken {
			continue
		}
		l.byIdentity[id] = label
		return id
	}
}
