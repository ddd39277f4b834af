// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package result defines the tagged result variants a query turn produces.
// Each result carries an ephemeral id, unique only within one turn and used
// to cross-reference results before they have durable ids; storage assigns
// the stored id, and StoreAll resolves ephemeral references into stored ones.
package result

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

// Kind tags, persisted alongside each result's JSON content.
const (
	KindSelectedTables  = "selected_tables"
	KindSQLQueryString  = "sql_query_string"
	KindSQLQueryRun     = "sql_query_run"
	KindChartGeneration = "chart_generation"
)

// Result is the closed set of values a turn can produce. Only the variants in
// this package implement it.
type Result interface {
	// Kind returns the variant tag.
	Kind() string
	// EphemeralID identifies the result within its turn, before storage.
	EphemeralID() string
	// StoredID is the durable id, empty until the result is stored.
	StoredID() string
	// LinkedID is the id of a causally-prior result: an ephemeral id until
	// link resolution, the referent's stored id after.
	LinkedID() string
	// LinkTo records a reference to another result's ephemeral id.
	LinkTo(ephemeralID string)
	// CreatedAt is the storage timestamp, zero until stored.
	CreatedAt() time.Time
	// Content returns the JSON persisted for this result. Stored bytes must
	// decode back to an equal value via Decode.
	Content() ([]byte, error)
	// Serialize returns the client-facing content projection.
	Serialize() map[string]interface{}

	// markStored seals the interface to this package's variants.
	markStored(id string, at time.Time)
}

// meta carries the identity shared by every variant.
type meta struct {
	ephemeralID string
	storedID    string
	linkedID    string
	createdAt   time.Time
}

func newMeta() meta {
	return meta{ephemeralID: uuid.NewString()}
}

func (m *meta) EphemeralID() string       { return m.ephemeralID }
func (m *meta) StoredID() string          { return m.storedID }
func (m *meta) LinkedID() string          { return m.linkedID }
func (m *meta) LinkTo(ephemeralID string) { m.linkedID = ephemeralID }
func (m *meta) CreatedAt() time.Time      { return m.createdAt }

func (m *meta) markStored(id string, at time.Time) {
	m.storedID = id
	m.createdAt = at
}

// SelectedTables records which tables the model chose to inspect or use.
type SelectedTables struct {
	meta
	Tables []string `json:"tables"`
}

func NewSelectedTables(tables []string) *SelectedTables {
	return &SelectedTables{meta: newMeta(), Tables: tables}
}

func (r *SelectedTables) Kind() string { return KindSelectedTables }

func (r *SelectedTables) Content() ([]byte, error) { return json.Marshal(r) }

func (r *SelectedTables) Serialize() map[string]interface{} {
	return map[string]interface{}{"tables": r.Tables}
}

// SQLQueryString captures generated SQL text. It is recorded even when the
// query later fails to execute, so the user can always audit intent.
type SQLQueryString struct {
	meta
	SQL      string `json:"sql"`
	ForChart bool   `json:"for_chart"`
}

func NewSQLQueryString(sql string, forChart bool) *SQLQueryString {
	return &SQLQueryString{meta: newMeta(), SQL: sql, ForChart: forChart}
}

func (r *SQLQueryString) Kind() string { return KindSQLQueryString }

func (r *SQLQueryString) Content() ([]byte, error) { return json.Marshal(r) }

func (r *SQLQueryString) Serialize() map[string]interface{} {
	return map[string]interface{}{"sql": r.SQL, "for_chart": r.ForChart}
}

// SQLQueryRun holds executed query results. When IsSecure is set the rows
// were returned to the client only and never entered the model's context.
type SQLQueryRun struct {
	meta
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	IsSecure bool            `json:"is_secure"`
	ForChart bool            `json:"for_chart"`
}

func NewSQLQueryRun(columns []string, rows [][]interface{}, isSecure, forChart bool) *SQLQueryRun {
	return &SQLQueryRun{meta: newMeta(), Columns: columns, Rows: rows, IsSecure: isSecure, ForChart: forChart}
}

func (r *SQLQueryRun) Kind() string { return KindSQLQueryRun }

func (r *SQLQueryRun) Content() ([]byte, error) { return json.Marshal(r) }

func (r *SQLQueryRun) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"columns":   r.Columns,
		"rows":      r.Rows,
		"is_secure": r.IsSecure,
		"for_chart": r.ForChart,
	}
}

// ChartGeneration holds a rendered Chart.js configuration.
type ChartGeneration struct {
	meta
	ChartJSON string `json:"chartjs_json"`
	ChartType string `json:"chart_type"`
}

func NewChartGeneration(chartJSON, chartType string) *ChartGeneration {
	return &ChartGeneration{meta: newMeta(), ChartJSON: chartJSON, ChartType: chartType}
}

func (r *ChartGeneration) Kind() string { return KindChartGeneration }

func (r *ChartGeneration) Content() ([]byte, error) { return json.Marshal(r) }

func (r *ChartGeneration) Serialize() map[string]interface{} {
	return map[string]interface{}{"chartjs_json": r.ChartJSON, "chart_type": r.ChartType}
}

var (
	_ Result = (*SelectedTables)(nil)
	_ Result = (*SQLQueryString)(nil)
	_ Result = (*SQLQueryRun)(nil)
	_ Result = (*ChartGeneration)(nil)
)

// Store persists one result's type-tagged content under the given message and
// marks it with the durable id and timestamp the store assigned.
func Store(ctx context.Context, repo storage.ResultStore, r Result, messageID string) error {
	content, err := r.Content()
	if err != nil {
		return fmt.Errorf("failed to encode %s result: %w", r.Kind(), err)
	}
	row, err := repo.CreateResult(ctx, messageID, r.Kind(), content, "")
	if err != nil {
		return fmt.Errorf("failed to store %s result: %w", r.Kind(), err)
	}
	r.markStored(row.ID, row.CreatedAt)
	return nil
}

// Decode rebuilds a variant from its persisted kind and content.
func Decode(kind string, content []byte) (Result, error) {
	var r Result
	switch kind {
	case KindSelectedTables:
		r = &SelectedTables{meta: newMeta()}
	case KindSQLQueryString:
		r = &SQLQueryString{meta: newMeta()}
	case KindSQLQueryRun:
		r = &SQLQueryRun{meta: newMeta()}
	case KindChartGeneration:
		r = &ChartGeneration{meta: newMeta()}
	default:
		return nil, fmt.Errorf("unknown result kind %q", kind)
	}
	if err := json.Unmarshal(content, r); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", kind, err)
	}
	return r, nil
}
