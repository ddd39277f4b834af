// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbal

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// RunResult holds the rows returned by a read-only query. Cell values are
// already truncated to the connection's cell limit; Truncated reports whether
// the row cap cut the result short.
type RunResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
}

// Run executes a read-only query and returns its rows. Queries that are not
// statically read-only are rejected before touching the database. Execution
// failures come back as a *QueryError so callers can surface the offending
// statement alongside the driver message.
func (c *Conn) Run(ctx context.Context, query string) (*RunResult, error) {
	if err := EnsureReadOnly(query); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}

	result := &RunResult{Columns: columns, Rows: [][]interface{}{}}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if len(result.Rows) >= c.maxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		row := make([]interface{}, len(columns))
		for i, v := range values {
			row[i] = truncateValue(v, c.maxCellLength)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}

	c.logger.Debug("executed query",
		zap.Int("rows", len(result.Rows)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// truncateValue normalizes a scanned cell for transport. Byte slices become
// strings, and strings longer than max runes are cut to max-3 runes plus an
// ellipsis so the final value never exceeds max.
func truncateValue(v interface{}, max int) interface{} {
	switch val := v.(type) {
	case []byte:
		return truncateString(string(val), max)
	case string:
		return truncateString(val, max)
	default:
		return v
	}
}

func truncateString(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
