// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"fmt"
	"strings"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
)

// systemPrompt builds the turn's system instruction for the connected
// dialect.
func systemPrompt(dialect dbal.Dialect, secureData bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a data analyst assistant answering questions about a %s database.

Rules:
- Only ever generate read-only SQL (SELECT or equivalent). Never generate INSERT, UPDATE, DELETE, DROP, ALTER, or CREATE statements; they will be refused.
- Write SQL in the %s dialect.
- Only reference tables from the available table list. Use describe_tables before querying a table whose columns you have not seen.
- When the user asks for a chart, run execute_sql with for_chart=true, shaping the query so the first column holds labels and later columns hold numeric values, then call generate_chart.
- Answer concisely and base every claim on actual query results, not assumptions.`,
		dialectName(dialect), dialectName(dialect))

	if secureData {
		b.WriteString(`

Secure data mode is active: you will not see any row values from query
results, only column names, value types, and row counts. The user sees the
full results. Describe what the result contains without guessing at values.`)
	}

	return b.String()
}

func dialectName(d dbal.Dialect) string {
	switch d {
	case dbal.DialectSQLite:
		return "SQLite"
	case dbal.DialectPostgres:
		return "PostgreSQL"
	case dbal.DialectMySQL:
		return "MySQL"
	case dbal.DialectMSSQL:
		return "Microsoft SQL Server"
	}
	return string(d)
}
