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
	"testing"
	"time"

	"github.com/AleutianAI/AleutianFresh/services/fresh/report"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...SnapshotOption) *SnapshotStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSnapshotStore(db, opts...)
}

func snap(session string, ts int64, stale ...string) *report.Report {
	r := &report.Report{SessionID: session, Timestamp: ts, Updated: []string{}}
	for _, name := range stale {
		r.Symbols = append(r.Symbols, report.SymbolEntry{Name: name, Stale: true})
		r.StaleCount++
	}
	return r
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = time.Hour

	db, err := OpenDB(cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())

	require.NoError(t, db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())

	db, err = OpenDB(cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("v"), val)
			return nil
		})
	}))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrPathRequired)

	_, err = NewGCRunner(nil, time.Second, 0.5, nil)
	assert.Error(t, err)

	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	_, err = NewGCRunner(db.DB, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db.DB, time.Second, 1.5, nil)
	assert.Error(t, err)
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.WithTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	err = db.WithReadTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Save(ctx, snap("s1", 1)))
	require.NoError(t, store.Save(ctx, snap("s1", 2, "y")))

	got, err := store.Load(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StaleCount)
	assert.Equal(t, "y", got.Symbols[0].Name)

	_, err = store.Load(ctx, "s1", 9)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	assert.ErrorIs(t, store.Save(ctx, snap("", 1)), ErrNoSessionID)
	assert.ErrorIs(t, store.Save(ctx, nil), ErrNoSessionID)
	assert.Error(t, store.Save(ctx, snap("a/b", 1)))
}

func TestSnapshotStore_ListAndLatest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, ts := range []int64{3, 1, 12, 2} {
		require.NoError(t, store.Save(ctx, snap("s1", ts)))
	}
	require.NoError(t, store.Save(ctx, snap("s10", 99)))

	list, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 12}, list, "s10 does not leak into s1")

	latest, err := store.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), latest.Timestamp)

	_, err = store.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s10"}, sessions)
}

func TestSnapshotStore_DeleteSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.Save(ctx, snap("s1", 1)))
	require.NoError(t, store.Save(ctx, snap("s1", 2)))
	require.NoError(t, store.Save(ctx, snap("s2", 1)))

	n, err := store.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err = store.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, sessions)
}

func TestSnapshotStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, WithTTL(time.Hour))
	require.NoError(t, store.Save(ctx, snap("s1", 1)))

	require.NoError(t, store.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey("s1", 1))
		require.NoError(t, err)
		assert.NotZero(t, item.ExpiresAt())
		return nil
	}))
}
