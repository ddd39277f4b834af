// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
	"github.com/tabletalk-labs/tabletalk/pkg/storage/sqlite"

	_ "github.com/tabletalk-labs/tabletalk/internal/sqlitedriver"
)

// seedRentalDB creates a small film rental database and returns its path.
func seedRentalDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rental.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE actor (actor_id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT);
		CREATE TABLE film (film_id INTEGER PRIMARY KEY, title TEXT);
		CREATE TABLE film_actor (actor_id INTEGER, film_id INTEGER);
		INSERT INTO actor VALUES (1, 'IAN', 'TANDY'), (2, 'NICK', 'DEGENERES'), (3, 'LISA', 'MONROE'), (4, 'UNBILLED', 'EXTRA');
		INSERT INTO film VALUES (1, 'ZORRO ARK'), (2, 'ACADEMY DINOSAUR');
		INSERT INTO film_actor VALUES (1, 1), (2, 1), (3, 1), (4, 2);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

type fixture struct {
	store          *sqlite.Store
	conversationID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	connection, err := store.CreateConnection(ctx, "rental", seedRentalDB(t))
	require.NoError(t, err)
	conversation, err := store.CreateConversation(ctx, connection.ID, "")
	require.NoError(t, err)

	return &fixture{store: store, conversationID: conversation.ID}
}

const zorroQuery = `SELECT a.first_name, a.last_name
FROM actor a
JOIN film_actor fa ON fa.actor_id = a.actor_id
JOIN film f ON f.film_id = fa.film_id
WHERE f.title = 'ZORRO ARK'
ORDER BY a.actor_id`

func TestRunZorroArk(t *testing.T) {
	fx := newFixture(t)
	provider := &llm.MockProvider{Script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:    "call-1",
			Name:  "execute_sql",
			Input: map[string]interface{}{"query": zorroQuery},
		}}},
		{Content: "The actors in ZORRO ARK are IAN TANDY, NICK DEGENERES, and LISA MONROE."},
	}}

	service := New(Config{Store: fx.store, Provider: provider})
	turn, err := service.Run(context.Background(), fx.conversationID,
		"Who are the actors in the film 'ZORRO ARK'?", TurnOptions{})
	require.NoError(t, err)

	counts := map[string]int{}
	var runContent map[string]interface{}
	for _, res := range turn.Results {
		kind := res["type"].(string)
		counts[kind]++
		if kind == result.KindSQLQueryRun {
			runContent = res["content"].(map[string]interface{})
		}
	}

	assert.Equal(t, 1, counts[result.KindSQLQueryString])
	assert.Equal(t, 1, counts[result.KindSQLQueryRun])
	assert.Equal(t, 0, counts[result.KindChartGeneration])
	assert.LessOrEqual(t, counts[result.KindSelectedTables], 3)

	require.NotNil(t, runContent)
	assert.Equal(t, []string{"first_name", "last_name"}, runContent["columns"])
	rows := runContent["rows"].([][]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{"IAN", "TANDY"}, rows[0])

	// Both messages persisted, with the human question first.
	messages, err := fx.store.ListMessages(context.Background(), fx.conversationID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleHuman, messages[0].Role)
	assert.Equal(t, llm.RoleAI, messages[1].Role)
	assert.Equal(t, turn.AIMessage.ID, messages[1].ID)
}

func TestRunLinkingInvariant(t *testing.T) {
	fx := newFixture(t)
	provider := &llm.MockProvider{Script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:   "call-1",
			Name: "execute_sql",
			Input: map[string]interface{}{
				"query":     "SELECT last_name, COUNT(*) FROM actor GROUP BY last_name",
				"for_chart": true,
			},
		}}},
		{ToolCalls: []llm.ToolCall{{
			ID:    "call-2",
			Name:  "generate_chart",
			Input: map[string]interface{}{"chart_type": "bar"},
		}}},
		{Content: "Chart attached."},
	}}

	service := New(Config{Store: fx.store, Provider: provider})
	turn, err := service.Run(context.Background(), fx.conversationID, "Chart actors by last name", TurnOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	rows, err := fx.store.ListResultsForMessage(ctx, turn.AIMessage.ID)
	require.NoError(t, err)

	storedIDs := map[string]bool{}
	for _, row := range rows {
		storedIDs[row.ID] = true
	}

	linked := 0
	for _, row := range rows {
		if row.LinkedID == "" {
			continue
		}
		linked++
		assert.True(t, storedIDs[row.LinkedID],
			"linked_id %s must be another stored id from the same turn", row.LinkedID)
	}
	assert.Equal(t, 2, linked, "the run and the chart both link to the query string")

	// The serialized payload reflects resolved links.
	for _, res := range turn.Results {
		if res["type"] == result.KindChartGeneration {
			assert.True(t, storedIDs[res["linked_id"].(string)])
		}
	}
}

func TestRunSecureData(t *testing.T) {
	fx := newFixture(t)
	provider := &llm.MockProvider{Script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:    "call-1",
			Name:  "execute_sql",
			Input: map[string]interface{}{"query": "SELECT first_name, last_name FROM actor LIMIT 3"},
		}}},
		{Content: "The sample contains 3 rows with first and last names."},
	}}

	service := New(Config{Store: fx.store, Provider: provider})
	turn, err := service.Run(context.Background(), fx.conversationID,
		"Show me some sample rows from one of the tables", TurnOptions{SecureData: true})
	require.NoError(t, err)

	runs := 0
	for _, res := range turn.Results {
		if res["type"] != result.KindSQLQueryRun {
			continue
		}
		runs++
		content := res["content"].(map[string]interface{})
		assert.Equal(t, true, content["is_secure"])
	}
	assert.Equal(t, 1, runs)

	// No literal cell value ever reached the model.
	for _, call := range provider.Calls {
		for _, msg := range call {
			if msg.Role == llm.RoleTool {
				for _, cell := range []string{"IAN", "TANDY", "NICK", "LISA"} {
					assert.NotContains(t, msg.Content, cell)
				}
			}
		}
	}
	assert.NotContains(t, turn.AIMessage.Content, "IAN")
}

func TestRunNotConfigured(t *testing.T) {
	fx := newFixture(t)
	service := New(Config{Store: fx.store, Provider: nil})

	_, err := service.Run(context.Background(), fx.conversationID, "hello", TurnOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRunHistoryReplaysSQL(t *testing.T) {
	fx := newFixture(t)

	first := &llm.MockProvider{Script: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:    "call-1",
			Name:  "execute_sql",
			Input: map[string]interface{}{"query": zorroQuery},
		}}},
		{Content: "Three actors."},
	}}
	service := New(Config{Store: fx.store, Provider: first})
	_, err := service.Run(context.Background(), fx.conversationID,
		"Who are the actors in ZORRO ARK?", TurnOptions{})
	require.NoError(t, err)

	second := &llm.MockProvider{Script: []*llm.Response{
		{Content: "The same three as before."},
	}}
	service = New(Config{Store: fx.store, Provider: second})
	_, err = service.Run(context.Background(), fx.conversationID, "And who were they again?", TurnOptions{})
	require.NoError(t, err)

	// The second turn's prompt reconstructs the prior SQL generation as a
	// synthetic AI message.
	require.NotEmpty(t, second.Calls)
	var sawGenerated bool
	for _, msg := range second.Calls[0] {
		if msg.Role == llm.RoleAI && strings.HasPrefix(msg.Content, "Generated SQL: ") {
			assert.Contains(t, msg.Content, "ZORRO ARK")
			sawGenerated = true
		}
	}
	assert.True(t, sawGenerated)
}

func TestRunHumanMessageSurvivesFailure(t *testing.T) {
	fx := newFixture(t)
	// Empty script: the first model call fails.
	provider := &llm.MockProvider{}

	service := New(Config{Store: fx.store, Provider: provider})
	_, err := service.Run(context.Background(), fx.conversationID, "doomed question", TurnOptions{})
	require.Error(t, err)

	messages, err2 := fx.store.ListMessages(context.Background(), fx.conversationID, 0)
	require.NoError(t, err2)
	require.Len(t, messages, 1, "the optimistic human write survives the failed turn")
	assert.Equal(t, llm.RoleHuman, messages[0].Role)
	assert.Equal(t, "doomed question", messages[0].Content)

	// No results were persisted for the failed turn.
	var count int
	require.NoError(t, fx.store.DB().QueryRow("SELECT COUNT(*) FROM results").Scan(&count))
	assert.Zero(t, count)
}
