// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package dbal provides dialect-aware access to the user's live database:
// connection handling, table enumeration, DDL-style description, and guarded
// read-only statement execution with per-cell truncation.
//
// Supported dialects: SQLite, Postgres, MySQL, MSSQL. Connections are opened
// fresh per query turn and closed when the turn ends, bounding the blast
// radius of a stuck query to a single turn's resources.
package dbal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"                             // mysql driver
	_ "github.com/lib/pq"                                          // postgres driver
	_ "github.com/microsoft/go-mssqldb"                            // sqlserver driver
	_ "github.com/tabletalk-labs/tabletalk/internal/sqlitedriver" // registers "sqlite3"
)

// Dialect identifies the SQL dialect of a connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectMSSQL    Dialect = "mssql"
)

const (
	// DefaultMaxCellLength is the hard per-cell truncation applied to every
	// returned value, bounding prompt/context size.
	DefaultMaxCellLength = 300

	// DefaultMaxRows caps the number of rows returned from one statement.
	DefaultMaxRows = 100

	// DefaultSampleRows is how many sample rows Describe includes per table.
	DefaultSampleRows = 3

	// tableCacheTTL bounds how long the table inventory is served from cache.
	tableCacheTTL = 30 * time.Second
)

// Config holds configuration for opening a connection.
type Config struct {
	// DSN is the connection string; its scheme selects the dialect
	// (sqlite://, postgres://, mysql://, sqlserver://).
	DSN string

	// MaxCellLength overrides DefaultMaxCellLength when > 0.
	MaxCellLength int

	// MaxRows overrides DefaultMaxRows when > 0.
	MaxRows int

	// Logger for connection events. Defaults to zap.NewNop.
	Logger *zap.Logger
}

// Conn is a live connection to the user's database.
type Conn struct {
	db            *sql.DB
	dialect       Dialect
	maxCellLength int
	maxRows       int
	cache         *gocache.Cache
	logger        *zap.Logger
}

// ParseDSN resolves the dialect and driver-level DSN from a connection string.
func ParseDSN(dsn string) (Dialect, string, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, "postgres", dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		// go-sql-driver expects user:pass@tcp(host:port)/db without a scheme.
		return DialectMySQL, "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "sqlserver://"), strings.HasPrefix(dsn, "mssql://"):
		driverDSN := strings.Replace(dsn, "mssql://", "sqlserver://", 1)
		return DialectMSSQL, "sqlserver", driverDSN, nil
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"),
		strings.HasSuffix(dsn, ".sqlite3"), dsn == ":memory:":
		// Bare file paths from uploaded-file conversions.
		return DialectSQLite, "sqlite3", dsn, nil
	}
	return "", "", "", fmt.Errorf("unrecognized DSN scheme: %q", dsn)
}

// Open connects to the database described by cfg.DSN and verifies the
// connection with a ping.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	dialect, driver, driverDSN, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxCell := cfg.MaxCellLength
	if maxCell <= 0 {
		maxCell = DefaultMaxCellLength
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	return &Conn{
		db:            db,
		dialect:       dialect,
		maxCellLength: maxCell,
		maxRows:       maxRows,
		cache:         gocache.New(tableCacheTTL, 2*tableCacheTTL),
		logger:        logger,
	}, nil
}

// Dialect returns the connection's SQL dialect.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// MaxCellLength returns the per-cell truncation limit.
func (c *Conn) MaxCellLength() int {
	return c.maxCellLength
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.db.Close()
}
