// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"simple select", "SELECT * FROM actor", false},
		{"lowercase select", "select first_name from actor", false},
		{"leading whitespace", "   \n\tSELECT 1", false},
		{"cte", "WITH t AS (SELECT 1 AS n) SELECT n FROM t", false},
		{"explain", "EXPLAIN SELECT * FROM actor", false},
		{"show tables", "SHOW TABLES", false},
		{"describe", "DESCRIBE actor", false},
		{"values", "VALUES (1), (2)", false},
		{"pragma", "PRAGMA table_info(actor)", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"line comment prefix", "-- a comment\nSELECT 1", false},
		{"block comment prefix", "/* comment */ SELECT 1", false},
		{"keyword in string literal", "SELECT * FROM film WHERE title = 'DROP ZONE'", false},
		{"keyword in quoted ident", `SELECT "delete" FROM audit`, false},

		{"insert", "INSERT INTO actor (first_name) VALUES ('X')", true},
		{"update", "UPDATE actor SET first_name = 'X'", true},
		{"delete", "DELETE FROM actor", true},
		{"drop", "DROP TABLE actor", true},
		{"alter", "ALTER TABLE actor ADD COLUMN x INT", true},
		{"create", "CREATE TABLE x (id INT)", true},
		{"truncate", "TRUNCATE TABLE actor", true},
		{"merge", "MERGE INTO actor USING x ON 1=1 WHEN MATCHED THEN DELETE", true},
		{"grant", "GRANT ALL ON actor TO public", true},
		{"vacuum", "VACUUM", true},
		{"lowercase insert", "insert into actor values (1)", true},
		{"comment hidden insert", "/* SELECT */ INSERT INTO actor VALUES (1)", true},
		{"cte smuggling delete", "WITH t AS (DELETE FROM actor RETURNING *) SELECT * FROM t", true},
		{"multi statement", "SELECT 1; DROP TABLE actor", true},
		{"empty", "", true},
		{"only comment", "-- nothing here", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureReadOnly(tt.query)
			if tt.wantErr {
				assert.Error(t, err, "query should be rejected: %s", tt.query)
			} else {
				assert.NoError(t, err, "query should be allowed: %s", tt.query)
			}
		})
	}
}

func TestStripQuoted(t *testing.T) {
	stripped := stripQuoted("SELECT 'a;b' FROM t")
	require.NotContains(t, stripped, ";")
	assert.Contains(t, stripped, "SELECT")
	assert.Contains(t, stripped, "FROM t")
}
