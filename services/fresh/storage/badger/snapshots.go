// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/dgraph-io/badger/v4"
)

const snapshotPrefix = "fresh/snap/"

var (
	// ErrSnapshotNotFound is returned when no snapshot matches.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrNoSessionID is returned when saving a snapshot without a session.
	ErrNoSessionID = errors.New("snapshot has no session ID")
)

// SnapshotStore keeps one report per session and timestamp.
//
// Keys are fresh/snap/<session>/<timestamp, zero padded> so a prefix scan
// returns a session's snapshots in unit order.
//
// Thread Safety: Safe for concurrent use.
type SnapshotStore struct {
	db  *DB
	ttl time.Duration
}

// SnapshotOption configures a SnapshotStore.
type SnapshotOption func(*SnapshotStore)

// WithTTL expires snapshots ttl after they are written. Zero keeps them
// forever.
func WithTTL(ttl time.Duration) SnapshotOption {
	return func(s *SnapshotStore) { s.ttl = ttl }
}

// NewSnapshotStore creates a store on db. The caller owns db.
func NewSnapshotStore(db *DB, opts ...SnapshotOption) *SnapshotStore {
	s := &SnapshotStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionPrefix(sessionID string) []byte {
	return []byte(snapshotPrefix + sessionID + "/")
}

func snapshotKey(sessionID string, ts int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", snapshotPrefix, sessionID, ts))
}

// Save writes snap under its session ID and timestamp, replacing any
// snapshot already there.
func (s *SnapshotStore) Save(ctx context.Context, snap *report.Report) error {
	if snap == nil || snap.SessionID == "" {
		return ErrNoSessionID
	}
	if strings.Contains(snap.SessionID, "/") {
		return fmt.Errorf("session ID %q must not contain '/'", snap.SessionID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(snapshotKey(snap.SessionID, snap.Timestamp), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Load returns the snapshot of sessionID at timestamp ts.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string, ts int64) (*report.Report, error) {
	var snap *report.Report
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(sessionID, ts))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s@%d", ErrSnapshotNotFound, sessionID, ts)
		}
		if err != nil {
			return err
		}
		snap, err = decode(item)
		return err
	})
	return snap, err
}

// Latest returns the snapshot of sessionID with the highest timestamp.
func (s *SnapshotStore) Latest(ctx context.Context, sessionID string) (*report.Report, error) {
	var snap *report.Report
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := sessionPrefix(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		var err error
		snap, err = decode(it.Item())
		return err
	})
	return snap, err
}

// List returns the timestamps of every snapshot of sessionID, ascending.
func (s *SnapshotStore) List(ctx context.Context, sessionID string) ([]int64, error) {
	var out []int64
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := sessionPrefix(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ts, err := strconv.ParseInt(key[len(prefix):], 10, 64)
			if err != nil {
				return fmt.Errorf("bad snapshot key %q: %w", key, err)
			}
			out = append(out, ts)
		}
		return nil
	})
	return out, err
}

// Sessions returns the IDs of every session with at least one snapshot,
// sorted.
func (s *SnapshotStore) Sessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(snapshotPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			if i := strings.IndexByte(rest, '/'); i > 0 {
				seen[rest[:i]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteSession removes every snapshot of sessionID and returns how many
// were removed.
func (s *SnapshotStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	timestamps, err := s.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if len(timestamps) == 0 {
		return 0, nil
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, ts := range timestamps {
			if err := txn.Delete(snapshotKey(sessionID, ts)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete snapshots of %s: %w", sessionID, err)
	}
	return len(timestamps), nil
}

func decode(item *badger.Item) (*report.Report, error) {
	var snap report.Report
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &snap)
	})
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", item.Key(), err)
	}
	return &snap, nil
}
