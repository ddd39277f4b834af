// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm defines the provider-neutral conversation types and the
// completion capability the query core depends on. Concrete transports live in
// subpackages (see pkg/llm/anthropic).
package llm

import (
	"context"
	"time"

	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// Message roles. The conversation history is an ordered sequence of these;
// tool-result messages are ephemeral and never persisted.
const (
	RoleSystem = "system"
	RoleHuman  = "user"
	RoleAI     = "assistant"
	RoleTool   = "tool"
)

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is a unique identifier for this tool call.
	ID string

	// Name is the tool name.
	Name string

	// Input contains the tool parameters as decoded JSON.
	Input map[string]interface{}
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool).
	Role string

	// Content is the message text.
	Content string

	// ToolCalls contains tool invocations (role assistant only).
	ToolCalls []ToolCall

	// ToolCallID is the id of the tool call this result corresponds to
	// (role tool only). Providers use it to match results to requests.
	ToolCallID string

	// Timestamp when the message was created.
	Timestamp time.Time
}

// Usage tracks token usage for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response represents a de-streamed terminal response from the LLM: the
// aggregated text plus any tool-call structure attached once generation
// finished.
type Response struct {
	// Content is the text response (if no tool calls).
	Content string

	// ToolCalls contains requested tool executions, in emission order.
	ToolCalls []ToolCall

	// StopReason indicates why the LLM stopped.
	StopReason string

	// Usage tracks token usage.
	Usage Usage
}

// Provider defines the interface for LLM completion transports.
type Provider interface {
	// Chat sends a conversation to the LLM and returns the response.
	Chat(ctx context.Context, messages []Message, tools []tool.Tool) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the model identifier.
	Model() string
}

// TokenCallback is called for each token/chunk during streaming.
// Implementations should be lightweight and non-blocking.
type TokenCallback func(token string)

// StreamingProvider extends Provider with token streaming. The core treats
// "model replied" as atomic; streaming only changes how the terminal message
// is produced, not what the graph engine observes.
type StreamingProvider interface {
	Provider

	// ChatStream streams tokens as they are generated and returns the complete
	// Response after the stream finishes.
	ChatStream(ctx context.Context, messages []Message, tools []tool.Tool,
		tokenCallback TokenCallback) (*Response, error)
}

// SupportsStreaming checks if a provider supports token streaming.
func SupportsStreaming(provider Provider) bool {
	_, ok := provider.(StreamingProvider)
	return ok
}
