// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const tableCacheKey = "tables"

// ListTables returns every usable table name in the connected database. For
// multi-schema dialects names are qualified as schema.table. The inventory is
// cached briefly since every turn begins with a mandatory listing; the result
// is idempotent while the schema is unchanged.
func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	if cached, found := c.cache.Get(tableCacheKey); found {
		tables := cached.([]string)
		return append([]string(nil), tables...), nil
	}

	var tables []string
	var err error
	switch c.dialect {
	case DialectSQLite:
		tables, err = c.queryStrings(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	case DialectMySQL:
		tables, err = c.queryStrings(ctx,
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`)
	case DialectPostgres:
		tables, err = c.queryQualified(ctx,
			`SELECT schemaname, tablename FROM pg_catalog.pg_tables
			 WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
			 ORDER BY schemaname, tablename`, "public")
	case DialectMSSQL:
		// MSSQL requires schema-qualified enumeration; dbo is not implicit
		// for cross-schema databases, so names are always qualified.
		tables, err = c.queryQualified(ctx,
			`SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			 WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA, TABLE_NAME`, "")
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", c.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	c.cache.SetDefault(tableCacheKey, tables)
	c.logger.Debug("listed tables", zap.Int("count", len(tables)))
	return append([]string(nil), tables...), nil
}

// queryStrings runs a single-column query and collects the values.
func (c *Conn) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// queryQualified runs a (schema, table) query and qualifies each name as
// schema.table, except for the default schema (when non-empty).
func (c *Conn) queryQualified(ctx context.Context, query, defaultSchema string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return nil, err
		}
		if defaultSchema != "" && schema == defaultSchema {
			out = append(out, table)
		} else {
			out = append(out, schema+"."+table)
		}
	}
	return out, rows.Err()
}

// Describe returns CREATE-TABLE-equivalent DDL for the named tables, plus up
// to DefaultSampleRows sample rows per table when includeSamples is set.
// Unknown names return an *UnknownTableError enumerating the valid names so
// the model can retry with corrected input.
func (c *Conn) Describe(ctx context.Context, names []string, includeSamples bool) (string, error) {
	valid, err := c.ListTables(ctx)
	if err != nil {
		return "", err
	}
	validSet := make(map[string]bool, len(valid))
	for _, v := range valid {
		validSet[v] = true
	}

	var unknown []string
	for _, name := range names {
		if !validSet[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return "", &UnknownTableError{Requested: unknown, Valid: valid}
	}

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		ddl, err := c.tableDDL(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to describe %s: %w", name, err)
		}
		b.WriteString(ddl)

		if includeSamples {
			samples, err := c.sampleRows(ctx, name)
			if err != nil {
				// Samples are best-effort; the DDL alone is still useful.
				c.logger.Warn("failed to fetch sample rows", zap.String("table", name), zap.Error(err))
				continue
			}
			if samples != "" {
				b.WriteString("\n\n")
				b.WriteString(samples)
			}
		}
	}
	return b.String(), nil
}

// tableDDL assembles CREATE TABLE text for one table.
func (c *Conn) tableDDL(ctx context.Context, name string) (string, error) {
	switch c.dialect {
	case DialectSQLite:
		var ddl string
		err := c.db.QueryRowContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&ddl)
		if err != nil {
			return "", err
		}
		return ddl, nil

	case DialectMySQL:
		var table, ddl string
		err := c.db.QueryRowContext(ctx,
			fmt.Sprintf("SHOW CREATE TABLE %s", c.quoteIdent(name))).Scan(&table, &ddl)
		if err != nil {
			return "", err
		}
		return ddl, nil

	case DialectPostgres, DialectMSSQL:
		return c.columnsDDL(ctx, name)
	}
	return "", fmt.Errorf("unsupported dialect: %s", c.dialect)
}

// columnsDDL builds CREATE TABLE text from information_schema.columns for
// dialects that expose no single-statement DDL dump.
func (c *Conn) columnsDDL(ctx context.Context, name string) (string, error) {
	schema, table := splitQualified(name, c.defaultSchema())

	var query string
	if c.dialect == DialectPostgres {
		query = `SELECT column_name, data_type, is_nullable,
			 COALESCE(character_maximum_length, 0)
			 FROM information_schema.columns
			 WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
	} else {
		query = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE,
			 COALESCE(CHARACTER_MAXIMUM_LENGTH, 0)
			 FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION`
	}

	rows, err := c.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col, typ, nullable string
		var maxLen int64
		if err := rows.Scan(&col, &typ, &nullable, &maxLen); err != nil {
			return "", err
		}
		if maxLen > 0 {
			typ = fmt.Sprintf("%s(%d)", typ, maxLen)
		}
		null := ""
		if strings.EqualFold(nullable, "NO") {
			null = " NOT NULL"
		}
		cols = append(cols, fmt.Sprintf("  %s %s%s", col, typ, null))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("no columns found for %s", name)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", name, strings.Join(cols, ",\n")), nil
}

// sampleRows formats up to DefaultSampleRows rows from the table.
func (c *Conn) sampleRows(ctx context.Context, name string) (string, error) {
	var query string
	if c.dialect == DialectMSSQL {
		query = fmt.Sprintf("SELECT TOP %d * FROM %s", DefaultSampleRows, c.quoteIdent(name))
	} else {
		query = fmt.Sprintf("SELECT * FROM %s LIMIT %d", c.quoteIdent(name), DefaultSampleRows)
	}

	result, err := c.Run(ctx, query)
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sample rows from %s:\n", name)
	b.WriteString(strings.Join(result.Columns, " | "))
	for _, row := range result.Rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%v", cell)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String(), nil
}

// quoteIdent quotes a possibly schema-qualified identifier for the dialect.
func (c *Conn) quoteIdent(name string) string {
	parts := strings.SplitN(name, ".", 2)
	for i, p := range parts {
		switch c.dialect {
		case DialectMySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case DialectMSSQL:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

func (c *Conn) defaultSchema() string {
	switch c.dialect {
	case DialectPostgres:
		return "public"
	case DialectMSSQL:
		return "dbo"
	}
	return ""
}

func splitQualified(name, defaultSchema string) (schema, table string) {
	if idx := strings.Index(name, "."); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return defaultSchema, name
}
