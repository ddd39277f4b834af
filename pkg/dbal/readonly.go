// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbal

import (
	"fmt"
	"strings"
)

// Leading keywords of statements the executor will run.
var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
	"PRAGMA":   true,
	"VALUES":   true,
}

// Keywords that mutate data or schema. Statements starting with WITH are
// additionally scanned for these, since some dialects allow WITH ... DELETE.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"REPLACE":  true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"GRANT":    true,
	"REVOKE":   true,
	"ATTACH":   true,
	"VACUUM":   true,
}

// EnsureReadOnly rejects any statement recognizable as DML/DDL. This is the
// structural enforcement behind the prompt's read-only instruction: the guard
// runs on every execution path, including chart refresh of previously stored
// SQL.
func EnsureReadOnly(query string) error {
	stripped := stripComments(query)
	stmt := strings.TrimSpace(stripped)
	if stmt == "" {
		return &QueryError{Query: query, Err: fmt.Errorf("empty statement")}
	}

	// Reject multi-statement input: anything after the first semicolon.
	unquoted := stripQuoted(stmt)
	if idx := strings.Index(unquoted, ";"); idx >= 0 {
		if strings.TrimSpace(unquoted[idx+1:]) != "" {
			return &QueryError{Query: query, Err: fmt.Errorf("multiple statements are not allowed")}
		}
	}

	first := strings.ToUpper(firstWord(stmt))
	if !readOnlyKeywords[first] {
		return &QueryError{Query: query, Err: fmt.Errorf("statement %q is not allowed; only read-only queries may be executed", first)}
	}

	// WITH ... INSERT/UPDATE/DELETE is writable in some dialects.
	if first == "WITH" {
		for _, word := range strings.Fields(strings.ToUpper(unquoted)) {
			word = strings.Trim(word, "(),;")
			if writeKeywords[word] {
				return &QueryError{Query: query, Err: fmt.Errorf("statement contains %s; only read-only queries may be executed", word)}
			}
		}
	}

	return nil
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

// stripComments removes -- line comments and /* */ block comments.
func stripComments(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "--") {
			if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				break
			}
			continue
		}
		if strings.HasPrefix(s[i:], "/*") {
			if end := strings.Index(s[i:], "*/"); end >= 0 {
				i += end + 2
			} else {
				break
			}
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// stripQuoted blanks out quoted literals and identifiers so keyword scans do
// not trip on words inside strings.
func stripQuoted(s string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			b.WriteByte(' ')
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
			b.WriteByte(' ')
		case '[':
			quote = ']'
			b.WriteByte(' ')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
