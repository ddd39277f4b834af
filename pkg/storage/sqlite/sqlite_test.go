// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedMessage creates the connection → conversation → message chain a result
// row requires.
func seedMessage(t *testing.T, store *Store) *storage.MessageRow {
	t.Helper()
	ctx := context.Background()

	conn, err := store.CreateConnection(ctx, "test", "test.db")
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, conn.ID, "a question")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, conv.ID, "assistant", "an answer")
	require.NoError(t, err)
	return msg
}

func TestMigrateUpFresh(t *testing.T) {
	store := newTestStore(t)

	migrator, err := NewMigrator(store.DB())
	require.NoError(t, err)
	version, err := migrator.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"connections", "conversations", "messages", "results"} {
		var count int
		err := store.DB().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestConnectionCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateConnection(ctx, "rental", "postgres://localhost/dvd_rental")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	byID, err := store.GetConnection(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, byID.Name)
	assert.Equal(t, created.DSN, byID.DSN)

	byName, err := store.GetConnectionByName(ctx, "rental")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	list, err := store.ListConnections(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteConnection(ctx, created.ID))
	_, err = store.GetConnection(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteConnection(ctx, created.ID), storage.ErrNotFound)
}

func TestMessageOrderingAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conn, err := store.CreateConnection(ctx, "test", "test.db")
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, conn.ID, "")
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		_, err := store.CreateMessage(ctx, conv.ID, "user", strings.Repeat("m", i+1))
		require.NoError(t, err)
	}

	all, err := store.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 15)
	assert.Equal(t, "m", all[0].Content, "chronological order starts with the first message")

	limited, err := store.ListMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, limited, 10)
	// The 10 most recent, still chronological.
	assert.Equal(t, strings.Repeat("m", 6), limited[0].Content)
	assert.Equal(t, strings.Repeat("m", 15), limited[9].Content)
}

func TestResultRoundTripAndCompression(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, store)

	t.Run("small content stored verbatim", func(t *testing.T) {
		content := []byte(`{"tables":["actor"]}`)
		created, err := store.CreateResult(ctx, msg.ID, "selected_tables", content, "")
		require.NoError(t, err)

		got, err := store.GetResult(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, content, got.Content)
		assert.Empty(t, got.LinkedID)
	})

	t.Run("large content compressed at rest", func(t *testing.T) {
		content := []byte(`{"rows":"` + strings.Repeat("abcdef", 1000) + `"}`)
		created, err := store.CreateResult(ctx, msg.ID, "sql_query_run", content, "")
		require.NoError(t, err)

		var compressed bool
		var stored []byte
		err = store.DB().QueryRow(
			"SELECT compressed, content FROM results WHERE id = ?", created.ID,
		).Scan(&compressed, &stored)
		require.NoError(t, err)
		assert.True(t, compressed)
		assert.Less(t, len(stored), len(content))

		got, err := store.GetResult(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, content, got.Content, "decompression restores exact bytes")
	})
}

func TestUpdateLinkedID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, store)

	first, err := store.CreateResult(ctx, msg.ID, "sql_query_string", []byte(`{}`), "")
	require.NoError(t, err)
	second, err := store.CreateResult(ctx, msg.ID, "sql_query_run", []byte(`{}`), "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateLinkedID(ctx, second.ID, first.ID))

	got, err := store.GetResult(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.LinkedID)

	list, err := store.ListResultsForMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.ErrorIs(t, store.UpdateLinkedID(ctx, "missing", first.ID), storage.ErrNotFound)
}

func TestJanitorDeletesOrphans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	msg := seedMessage(t, store)

	kept, err := store.CreateResult(ctx, msg.ID, "selected_tables", []byte(`{}`), "")
	require.NoError(t, err)

	// Orphan a result by pointing it at a message that is then removed
	// outside the cascade path.
	_, err = store.DB().Exec("PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = store.DB().Exec(
		"INSERT INTO results (id, message_id, kind, content, compressed, linked_id, created_at) VALUES ('orphan', 'gone', 'selected_tables', '{}', 0, NULL, 0)")
	require.NoError(t, err)

	janitor := NewJanitor(store, nil)
	require.NoError(t, janitor.RunOnce(ctx))

	_, err = store.GetResult(ctx, "orphan")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetResult(ctx, kept.ID)
	assert.NoError(t, err, "results with live messages survive maintenance")
}
