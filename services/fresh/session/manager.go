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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Manager holds sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     []Option
	logger   *slog.Logger
}

// NewManager creates a manager. opts apply to every session it creates.
func NewManager(opts ...Option) *Manager {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   o.logger,
	}
}

// Create starts a new session with a random ID.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s := New(uuid.NewString(), m.opts...)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	activeSessions.Set(float64(n))
	m.logger.Info("session created", slog.String("session_id", s.ID()))
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete drops the session with the given ID.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	activeSessions.Set(float64(n))
	staleSymbols.DeleteLabelValues(id)
	m.logger.Info("session deleted", slog.String("session_id", id))
	return nil
}

// IDs returns the IDs of every session, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
