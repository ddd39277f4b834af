// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"time"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// ExecuteSQLTool runs a read-only SQL statement against the live connection.
// Statements that are not statically read-only are refused before touching
// the database; execution failures come back as recoverable tool errors so
// the model can correct its SQL and retry.
type ExecuteSQLTool struct {
	conn *dbal.Conn
}

func NewExecuteSQLTool(conn *dbal.Conn) *ExecuteSQLTool {
	return &ExecuteSQLTool{conn: conn}
}

func (t *ExecuteSQLTool) Name() string {
	return tool.NameExecuteSQL
}

func (t *ExecuteSQLTool) Description() string {
	return `Executes a read-only SQL query (SELECT or equivalent) against the
connected database and returns the result rows. Write statements (INSERT,
UPDATE, DELETE, DROP, ALTER, CREATE) are refused. Long cell values are
truncated. Set for_chart=true when the result is intended as chart data.`
}

func (t *ExecuteSQLTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema(
		"Parameters for executing SQL",
		map[string]*tool.JSONSchema{
			"query": tool.NewStringSchema("The SQL query to execute. Must be a single read-only statement in the connection's dialect."),
			"for_chart": tool.NewBooleanSchema("Whether this query's result will be used to generate a chart").
				WithDefault(false),
		},
		[]string{"query"},
	)
}

func (t *ExecuteSQLTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	query, ok := params["query"].(string)
	if !ok || query == "" {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "INVALID_PARAMS",
				Message:    "query is required",
				Suggestion: "Provide a SQL query string",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	forChart := false
	if fc, ok := params["for_chart"].(bool); ok {
		forChart = fc
	}

	runResult, err := t.conn.Run(ctx, query)
	if err != nil {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "QUERY_EXECUTION_ERROR",
				Message:    err.Error(),
				Suggestion: "Check the SQL syntax and table/column names, then retry with a corrected query",
			},
			Metadata: map[string]interface{}{
				"query":     query,
				"for_chart": forChart,
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return &tool.Result{
		Success: true,
		Data:    runResult,
		Metadata: map[string]interface{}{
			"query":     query,
			"for_chart": forChart,
			"row_count": len(runResult.Rows),
			"truncated": runResult.Truncated,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Rows extracts the run result from a successful execution.
func (t *ExecuteSQLTool) Rows(res *tool.Result) *dbal.RunResult {
	if rr, ok := res.Data.(*dbal.RunResult); ok {
		return rr
	}
	return nil
}

var _ tool.Tool = (*ExecuteSQLTool)(nil)
