// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package result

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

// fakeResultStore records created and updated rows in memory.
type fakeResultStore struct {
	rows    []*storage.ResultRow
	updates map[string]string // stored id → linked id
	nextID  int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{updates: map[string]string{}}
}

func (f *fakeResultStore) CreateResult(ctx context.Context, messageID, kind string, content []byte, linkedID string) (*storage.ResultRow, error) {
	f.nextID++
	row := &storage.ResultRow{
		ID:        fmt.Sprintf("stored-%d", f.nextID),
		MessageID: messageID,
		Kind:      kind,
		Content:   content,
		LinkedID:  linkedID,
		CreatedAt: time.Now(),
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeResultStore) GetResult(ctx context.Context, id string) (*storage.ResultRow, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeResultStore) ListResultsForMessage(ctx context.Context, messageID string) ([]*storage.ResultRow, error) {
	var out []*storage.ResultRow
	for _, row := range f.rows {
		if row.MessageID == messageID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeResultStore) UpdateLinkedID(ctx context.Context, id, linkedID string) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.LinkedID = linkedID
			f.updates[id] = linkedID
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeResultStore) UpdateContent(ctx context.Context, id string, content []byte) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.Content = content
			return nil
		}
	}
	return storage.ErrNotFound
}

func TestEphemeralIDsUnique(t *testing.T) {
	a := NewSelectedTables([]string{"actor"})
	b := NewSelectedTables([]string{"actor"})
	assert.NotEmpty(t, a.EphemeralID())
	assert.NotEqual(t, a.EphemeralID(), b.EphemeralID())
	assert.Empty(t, a.StoredID(), "stored id is empty before storage")
}

func TestContentRoundTrip(t *testing.T) {
	variants := []Result{
		NewSelectedTables([]string{"actor", "film"}),
		NewSQLQueryString("SELECT * FROM actor", true),
		NewSQLQueryRun([]string{"first_name"}, [][]interface{}{{"IAN"}}, true, false),
		NewChartGeneration(`{"type":"bar"}`, "bar"),
	}

	for _, original := range variants {
		t.Run(original.Kind(), func(t *testing.T) {
			content, err := original.Content()
			require.NoError(t, err)

			decoded, err := Decode(original.Kind(), content)
			require.NoError(t, err)
			assert.Equal(t, original.Kind(), decoded.Kind())

			// Stored bytes decode back to identical content.
			again, err := decoded.Content()
			require.NoError(t, err)
			assert.Equal(t, content, again)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("mystery", []byte("{}"))
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	repo := newFakeResultStore()
	r := NewSQLQueryString("SELECT 1", false)

	err := Store(context.Background(), repo, r, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "stored-1", r.StoredID())
	assert.False(t, r.CreatedAt().IsZero())
	require.Len(t, repo.rows, 1)
	assert.Equal(t, KindSQLQueryString, repo.rows[0].Kind)
	assert.Equal(t, "msg-1", repo.rows[0].MessageID)
}

func TestStoreAllResolvesLinks(t *testing.T) {
	repo := newFakeResultStore()

	tables := NewSelectedTables([]string{"actor"})
	queryString := NewSQLQueryString("SELECT count(*) FROM actor", true)
	run := NewSQLQueryRun([]string{"count"}, [][]interface{}{{int64(3)}}, false, true)
	run.LinkTo(queryString.EphemeralID())
	generation := NewChartGeneration(`{"type":"bar"}`, "bar")
	generation.LinkTo(queryString.EphemeralID())

	results := []Result{tables, queryString, run, generation}
	err := StoreAll(context.Background(), repo, "msg-1", results)
	require.NoError(t, err)

	// Every result stored in creation order.
	require.Len(t, repo.rows, 4)
	assert.Equal(t, KindSelectedTables, repo.rows[0].Kind)
	assert.Equal(t, KindSQLQueryString, repo.rows[1].Kind)

	// Linked ids now reference the query string's stored id, both in memory
	// and in storage.
	assert.Equal(t, queryString.StoredID(), run.LinkedID())
	assert.Equal(t, queryString.StoredID(), generation.LinkedID())
	assert.Equal(t, queryString.StoredID(), repo.updates[run.StoredID()])
	assert.Equal(t, queryString.StoredID(), repo.updates[generation.StoredID()])

	// No ephemeral ids leak into storage.
	for _, row := range repo.rows {
		for _, r := range results {
			assert.NotEqual(t, r.EphemeralID(), row.LinkedID)
		}
	}

	// Unlinked results stay unlinked.
	assert.Empty(t, tables.LinkedID())
}

func TestStoreAllUnknownReference(t *testing.T) {
	repo := newFakeResultStore()
	run := NewSQLQueryRun([]string{"a"}, nil, false, false)
	run.LinkTo("no-such-ephemeral-id")

	err := StoreAll(context.Background(), repo, "msg-1", []Result{run})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ephemeral id")
}

func TestSerializeProjections(t *testing.T) {
	run := NewSQLQueryRun([]string{"first_name"}, [][]interface{}{{"IAN"}}, true, false)
	projected := run.Serialize()
	assert.Equal(t, []string{"first_name"}, projected["columns"])
	assert.Equal(t, true, projected["is_secure"])

	qs := NewSQLQueryString("SELECT 1", false)
	assert.Equal(t, "SELECT 1", qs.Serialize()["sql"])
}
