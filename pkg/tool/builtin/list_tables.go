// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package builtin provides the database tools bound to the model during a
// query turn.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// ListTablesTool enumerates every usable table in the connected database.
// It takes no arguments and is side-effect-free.
type ListTablesTool struct {
	conn *dbal.Conn
}

func NewListTablesTool(conn *dbal.Conn) *ListTablesTool {
	return &ListTablesTool{conn: conn}
}

func (t *ListTablesTool) Name() string {
	return tool.NameListTables
}

func (t *ListTablesTool) Description() string {
	return `Lists every table available in the connected database.
Multi-schema databases return schema-qualified names (schema.table).
Call this before writing SQL so you only reference tables that exist.`
}

func (t *ListTablesTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("No parameters", map[string]*tool.JSONSchema{}, nil)
}

func (t *ListTablesTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	tables, err := t.conn.ListTables(ctx)
	if err != nil {
		// A failed listing means the connection itself is unusable; there is
		// nothing the model can do differently, so abort the turn.
		return nil, fmt.Errorf("list_tables: %w", err)
	}

	return &tool.Result{
		Success: true,
		Data:    tables,
		Metadata: map[string]interface{}{
			"table_count": len(tables),
			"dialect":     string(t.conn.Dialect()),
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Tables extracts the table list from a successful result.
func (t *ListTablesTool) Tables(res *tool.Result) []string {
	if tables, ok := res.Data.([]string); ok {
		return tables
	}
	return nil
}

var _ tool.Tool = (*ListTablesTool)(nil)

// splitTableNames parses a comma-separated table_names argument.
func splitTableNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
