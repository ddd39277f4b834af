// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlite implements storage.Store on a local SQLite database. The
// schema is managed by an embedded-SQL migrator; large result payloads are
// transparently zstd-compressed at rest.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	_ "github.com/tabletalk-labs/tabletalk/internal/sqlitedriver" // registers "sqlite3" driver

	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

// CompressionThreshold is the minimum result payload size in bytes that
// triggers compression at rest.
const CompressionThreshold = 1024

// Store implements storage.Store on SQLite.
type Store struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and applies all
// pending migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows a reader during the turn's writes; busy_timeout makes
	// contending writers wait instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	// Reusable, thread-safe encoder/decoder pair.
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	logger.Debug("opened result store", zap.String("path", path))
	return &Store{db: db, encoder: encoder, decoder: decoder, logger: logger}, nil
}

// DB exposes the underlying handle for maintenance jobs.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

// --- connections ---

func (s *Store) CreateConnection(ctx context.Context, name, dsn string) (*storage.ConnectionRow, error) {
	row := &storage.ConnectionRow{
		ID:        uuid.NewString(),
		Name:      name,
		DSN:       dsn,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO connections (id, name, dsn, created_at) VALUES (?, ?, ?, ?)",
		row.ID, row.Name, row.DSN, row.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return row, nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*storage.ConnectionRow, error) {
	return s.scanConnection(s.db.QueryRowContext(ctx,
		"SELECT id, name, dsn, created_at FROM connections WHERE id = ?", id))
}

func (s *Store) GetConnectionByName(ctx context.Context, name string) (*storage.ConnectionRow, error) {
	return s.scanConnection(s.db.QueryRowContext(ctx,
		"SELECT id, name, dsn, created_at FROM connections WHERE name = ?", name))
}

func (s *Store) ListConnections(ctx context.Context) ([]*storage.ConnectionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, dsn, created_at FROM connections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var out []*storage.ConnectionRow
	for rows.Next() {
		var row storage.ConnectionRow
		var createdAt int64
		if err := rows.Scan(&row.ID, &row.Name, &row.DSN, &createdAt); err != nil {
			return nil, err
		}
		row.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &row)
	}
	return out, rows.Err()
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) scanConnection(row *sql.Row) (*storage.ConnectionRow, error) {
	var out storage.ConnectionRow
	var createdAt int64
	err := row.Scan(&out.ID, &out.Name, &out.DSN, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out.CreatedAt = time.Unix(0, createdAt)
	return &out, nil
}

// --- conversations ---

func (s *Store) CreateConversation(ctx context.Context, connectionID, title string) (*storage.ConversationRow, error) {
	row := &storage.ConversationRow{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Title:        title,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, connection_id, title, created_at) VALUES (?, ?, ?, ?)",
		row.ID, row.ConnectionID, row.Title, row.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return row, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.ConversationRow, error) {
	var out storage.ConversationRow
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, connection_id, title, created_at FROM conversations WHERE id = ?", id,
	).Scan(&out.ID, &out.ConnectionID, &out.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out.CreatedAt = time.Unix(0, createdAt)
	return &out, nil
}

func (s *Store) ListConversations(ctx context.Context, connectionID string) ([]*storage.ConversationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, connection_id, title, created_at FROM conversations WHERE connection_id = ? ORDER BY created_at",
		connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*storage.ConversationRow
	for rows.Next() {
		var row storage.ConversationRow
		var createdAt int64
		if err := rows.Scan(&row.ID, &row.ConnectionID, &row.Title, &createdAt); err != nil {
			return nil, err
		}
		row.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &row)
	}
	return out, rows.Err()
}

// --- messages ---

func (s *Store) CreateMessage(ctx context.Context, conversationID, role, content string) (*storage.MessageRow, error) {
	row := &storage.MessageRow{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		row.ID, row.ConversationID, row.Role, row.Content, row.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return row, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]*storage.MessageRow, error) {
	// Fetch the most recent messages, then reverse into chronological order.
	query := "SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC"
	args := []interface{}{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*storage.MessageRow
	for rows.Next() {
		var row storage.MessageRow
		var createdAt int64
		if err := rows.Scan(&row.ID, &row.ConversationID, &row.Role, &row.Content, &createdAt); err != nil {
			return nil, err
		}
		row.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- results ---

func (s *Store) CreateResult(ctx context.Context, messageID, kind string, content []byte, linkedID string) (*storage.ResultRow, error) {
	row := &storage.ResultRow{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Kind:      kind,
		Content:   content,
		LinkedID:  linkedID,
		CreatedAt: time.Now(),
	}

	stored, compressed := s.maybeCompress(content)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO results (id, message_id, kind, content, compressed, linked_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		row.ID, row.MessageID, row.Kind, stored, compressed, nullable(row.LinkedID), row.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create result: %w", err)
	}
	return row, nil
}

func (s *Store) GetResult(ctx context.Context, id string) (*storage.ResultRow, error) {
	var out storage.ResultRow
	var content []byte
	var compressed bool
	var linkedID sql.NullString
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, message_id, kind, content, compressed, linked_id, created_at FROM results WHERE id = ?", id,
	).Scan(&out.ID, &out.MessageID, &out.Kind, &content, &compressed, &linkedID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	out.Content, err = s.maybeDecompress(content, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress result %s: %w", id, err)
	}
	out.LinkedID = linkedID.String
	out.CreatedAt = time.Unix(0, createdAt)
	return &out, nil
}

func (s *Store) ListResultsForMessage(ctx context.Context, messageID string) ([]*storage.ResultRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, message_id, kind, content, compressed, linked_id, created_at FROM results WHERE message_id = ? ORDER BY created_at, rowid",
		messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []*storage.ResultRow
	for rows.Next() {
		var row storage.ResultRow
		var content []byte
		var compressed bool
		var linkedID sql.NullString
		var createdAt int64
		if err := rows.Scan(&row.ID, &row.MessageID, &row.Kind, &content, &compressed, &linkedID, &createdAt); err != nil {
			return nil, err
		}
		row.Content, err = s.maybeDecompress(content, compressed)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress result %s: %w", row.ID, err)
		}
		row.LinkedID = linkedID.String
		row.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &row)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLinkedID(ctx context.Context, id, linkedID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE results SET linked_id = ? WHERE id = ?", nullable(linkedID), id)
	if err != nil {
		return fmt.Errorf("failed to update linked id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateContent(ctx context.Context, id string, content []byte) error {
	stored, compressed := s.maybeCompress(content)
	res, err := s.db.ExecContext(ctx,
		"UPDATE results SET content = ?, compressed = ? WHERE id = ?", stored, compressed, id)
	if err != nil {
		return fmt.Errorf("failed to update result content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// maybeCompress compresses content at or above the threshold, keeping the
// original when compression does not actually shrink it.
func (s *Store) maybeCompress(content []byte) ([]byte, bool) {
	if len(content) < CompressionThreshold {
		return content, false
	}
	compressed := s.encoder.EncodeAll(content, nil)
	if len(compressed) >= len(content) {
		return content, false
	}
	return compressed, true
}

func (s *Store) maybeDecompress(content []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return content, nil
	}
	return s.decoder.DecodeAll(content, nil)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
