// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package tool defines the typed capabilities the model may invoke during a
// query turn, the registry they are dispatched through, and the JSON Schema
// vocabulary used to describe their parameters to the LLM.
package tool

import (
	"context"
	"encoding/json"
)

// Fixed tool names. These are the routing keys used when the model requests a
// tool invocation, so they are part of the wire contract with the prompt.
const (
	NameListTables     = "list_tables"
	NameDescribeTables = "describe_tables"
	NameExecuteSQL     = "execute_sql"
	NameGenerateChart  = "generate_chart"
)

// Tool is a single named capability exposed to the model.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for LLM context.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with given parameters.
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)
}

// Result represents the outcome of tool execution.
//
// A failed Result (Success == false) is a recoverable condition: its Error text
// is fed back to the model so it can correct itself within the same turn. A
// non-nil error returned from Execute is an infrastructure failure and aborts
// the turn.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool

	// Data contains the result data (format varies by tool).
	Data interface{}

	// Error contains error information if execution failed.
	Error *Error

	// Metadata contains tool-specific metadata.
	Metadata map[string]interface{}

	// ExecutionTime in milliseconds.
	ExecutionTimeMs int64
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Suggestion provides a suggestion for fixing the error. It is appended to
	// the message fed back to the model.
	Suggestion string
}

// Text renders the error the way it is shown to the model.
func (e *Error) Text() string {
	if e.Suggestion != "" {
		return e.Message + " " + e.Suggestion
	}
	return e.Message
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "string",
		Description: description,
	}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "boolean",
		Description: description,
	}
}

// WithEnum adds enum values to the schema.
func (s *JSONSchema) WithEnum(values ...interface{}) *JSONSchema {
	s.Enum = values
	return s
}

// WithDefault adds a default value to the schema.
func (s *JSONSchema) WithDefault(value interface{}) *JSONSchema {
	s.Default = value
	return s
}
