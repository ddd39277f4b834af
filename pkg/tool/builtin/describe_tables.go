// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// DescribeTablesTool returns CREATE-TABLE-equivalent DDL plus sample rows for
// the requested tables. Unknown names fail with the list of valid names so
// the model can retry with corrected input.
type DescribeTablesTool struct {
	conn           *dbal.Conn
	includeSamples bool
}

func NewDescribeTablesTool(conn *dbal.Conn, includeSamples bool) *DescribeTablesTool {
	return &DescribeTablesTool{conn: conn, includeSamples: includeSamples}
}

func (t *DescribeTablesTool) Name() string {
	return tool.NameDescribeTables
}

func (t *DescribeTablesTool) Description() string {
	return `Describes the structure of one or more tables: column definitions as
CREATE TABLE DDL, plus a few sample rows. Use this before writing SQL against
a table whose columns you have not seen.`
}

func (t *DescribeTablesTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema(
		"Parameters for describing tables",
		map[string]*tool.JSONSchema{
			"table_names": tool.NewStringSchema("Comma-separated table names to describe (e.g. 'actor,film_actor'). Use schema-qualified names where the listing shows them."),
		},
		[]string{"table_names"},
	)
}

func (t *DescribeTablesTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	raw, ok := params["table_names"].(string)
	if !ok || raw == "" {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "INVALID_PARAMS",
				Message:    "table_names is required",
				Suggestion: "Provide a comma-separated list of table names, e.g. 'actor,film'",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	names := splitTableNames(raw)
	if len(names) == 0 {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "INVALID_PARAMS",
				Message:    "table_names contained no names",
				Suggestion: "Provide at least one table name",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	description, err := t.conn.Describe(ctx, names, t.includeSamples)
	if err != nil {
		var unknown *dbal.UnknownTableError
		if errors.As(err, &unknown) {
			// Recoverable: tell the model which names are valid and let it
			// retry.
			return &tool.Result{
				Success: false,
				Error: &tool.Error{
					Code:       "UNKNOWN_TABLE",
					Message:    unknown.Error(),
					Suggestion: "Retry with names from the valid table list",
				},
				Metadata: map[string]interface{}{
					"valid_tables": unknown.Valid,
				},
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
		return nil, fmt.Errorf("describe_tables: %w", err)
	}

	return &tool.Result{
		Success: true,
		Data:    description,
		Metadata: map[string]interface{}{
			// The names found valid, recorded so the turn can track which
			// tables the model is actually using.
			"tables": names,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ tool.Tool = (*DescribeTablesTool)(nil)
