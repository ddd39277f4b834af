// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

type stubTool struct {
	name string
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool" }

func (t *stubTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("Parameters", map[string]*tool.JSONSchema{
		"query": tool.NewStringSchema("SQL to run"),
	}, []string{"query"})
}

func (t *stubTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	return &tool.Result{Success: true}, nil
}

func textResponse(text string) *MessagesResponse {
	return &MessagesResponse{
		ID:         "msg_test",
		Type:       "message",
		Role:       "assistant",
		Content:    []ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      Usage{InputTokens: 12, OutputTokens: 5},
	}
}

// newTestServer returns a client pointed at an httptest server that records
// the decoded request body and replies with the given response.
func newTestServer(t *testing.T, resp *MessagesResponse) (*Client, *MessagesRequest) {
	t.Helper()

	captured := &MessagesRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		APIKey:   "test-key",
		Model:    "claude-test",
		Endpoint: srv.URL,
	})
	return client, captured
}

func TestChatSystemExtraction(t *testing.T) {
	client, captured := newTestServer(t, textResponse("hello"))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a SQL analyst."},
		{Role: llm.RoleSystem, Content: "Tables available: actor"},
		{Role: llm.RoleHuman, Content: "how many actors?"},
	}

	resp, err := client.Chat(context.Background(), messages, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 17, resp.Usage.TotalTokens)

	// System messages are lifted out of the messages array and combined into
	// one cached block.
	require.Len(t, captured.System, 1)
	assert.Contains(t, captured.System[0].Text, "SQL analyst")
	assert.Contains(t, captured.System[0].Text, "Tables available")
	require.NotNil(t, captured.System[0].CacheControl)
	assert.Equal(t, "ephemeral", captured.System[0].CacheControl.Type)

	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestChatToolConversion(t *testing.T) {
	client, captured := newTestServer(t, textResponse("ok"))

	tools := []tool.Tool{
		&stubTool{name: "execute_sql"},
		&stubTool{name: "db:list_tables"},
	}
	_, err := client.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleHuman, Content: "hi"},
	}, tools)
	require.NoError(t, err)

	require.Len(t, captured.Tools, 2)
	assert.Equal(t, "execute_sql", captured.Tools[0].Name)
	assert.Equal(t, "db_list_tables", captured.Tools[1].Name, "colons sanitized for the API")
	assert.Equal(t, []string{"query"}, captured.Tools[0].InputSchema.Required)
	assert.Nil(t, captured.Tools[0].CacheControl)
	require.NotNil(t, captured.Tools[1].CacheControl, "last tool carries the cache breakpoint")
}

func TestChatToolResultMapping(t *testing.T) {
	client, captured := newTestServer(t, textResponse("done"))

	messages := []llm.Message{
		{Role: llm.RoleHuman, Content: "run it"},
		{
			Role:    llm.RoleAI,
			Content: "running",
			ToolCalls: []llm.ToolCall{
				{ID: "toolu_1", Name: "execute_sql", Input: map[string]interface{}{"query": "SELECT 1"}},
			},
		},
		{Role: llm.RoleTool, Content: `{"columns":["1"]}`, ToolCallID: "toolu_1"},
	}

	_, err := client.Chat(context.Background(), messages, nil)
	require.NoError(t, err)

	require.Len(t, captured.Messages, 3)

	assistant := captured.Messages[1]
	assert.Equal(t, "assistant", assistant.Role)
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, "text", assistant.Content[0].Type)
	assert.Equal(t, "tool_use", assistant.Content[1].Type)
	assert.Equal(t, "toolu_1", assistant.Content[1].ID)

	// Tool results go back as user messages with a tool_result block.
	result := captured.Messages[2]
	assert.Equal(t, "user", result.Role)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "tool_result", result.Content[0].Type)
	assert.Equal(t, "toolu_1", result.Content[0].ToolUseID)
	assert.Contains(t, result.Content[0].Content, "columns")
}

func TestChatToolUseResponse(t *testing.T) {
	resp := &MessagesResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "let me check"},
			{
				Type:  "tool_use",
				ID:    "toolu_abc",
				Name:  "db_list_tables",
				Input: map[string]interface{}{},
			},
		},
		StopReason: "tool_use",
		Usage:      Usage{InputTokens: 20, OutputTokens: 8},
	}
	client, _ := newTestServer(t, resp)

	got, err := client.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleHuman, Content: "what tables exist?"},
	}, []tool.Tool{&stubTool{name: "db:list_tables"}})
	require.NoError(t, err)

	assert.Equal(t, "let me check", got.Content)
	assert.Equal(t, "tool_use", got.StopReason)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "toolu_abc", got.ToolCalls[0].ID)
	assert.Equal(t, "db:list_tables", got.ToolCalls[0].Name, "sanitized name mapped back to the original")
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{APIKey: "test-key", Endpoint: srv.URL})
	_, err := client.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleHuman, Content: "hi"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "db_execute_sql", llm.SanitizeToolName("db:execute_sql"))
	assert.Equal(t, "plain", llm.SanitizeToolName("plain"))
}
