// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package graph runs one query turn as a small state machine: a mandatory
// table-listing step, then alternating model and tool steps until the model
// answers without requesting tools.
package graph

import (
	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
)

// Node is a state of the turn machine.
type Node int

const (
	NodeListTables Node = iota
	NodeModel
	NodeTool
	NodeEnd
)

func (n Node) String() string {
	switch n {
	case NodeListTables:
		return "list_tables"
	case NodeModel:
		return "model"
	case NodeTool:
		return "tool"
	case NodeEnd:
		return "end"
	}
	return "unknown"
}

// Options configures one turn.
type Options struct {
	// SecureData keeps row values out of the model's context: tool-result
	// messages describe result shape only, while the rows still reach the
	// client through the produced results.
	SecureData bool

	// MaxSteps caps model invocations per turn. When the cap is reached the
	// model gets one final call with no tools bound, forcing a text answer.
	MaxSteps int

	// MaxToolCalls caps tool invocations per turn, guarding against a model
	// that loops on tools without converging.
	MaxToolCalls int
}

// DefaultOptions returns the standard turn limits.
func DefaultOptions() Options {
	return Options{
		MaxSteps:     12,
		MaxToolCalls: 20,
	}
}

// State is the shared mutable state of one turn. It is exclusively owned by
// that turn's execution and never shared across concurrent turns.
type State struct {
	Messages []llm.Message
	Results  []result.Result
	Options  Options
}

// NewState builds turn state from the pre-assembled prompt messages.
func NewState(messages []llm.Message, opts Options) *State {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions().MaxSteps
	}
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = DefaultOptions().MaxToolCalls
	}
	return &State{Messages: messages, Options: opts}
}

// LastAIMessage returns the most recent AI-role message, or nil.
func (s *State) LastAIMessage() *llm.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAI {
			return &s.Messages[i]
		}
	}
	return nil
}
