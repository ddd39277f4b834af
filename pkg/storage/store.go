// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage defines the persistence contracts for conversations,
// messages, results, and database connections. Content fields are opaque
// blobs owned by the callers that serialize into them; implementations must
// return stored bytes unchanged (round-trip law).
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ConnectionRow is a saved database connection.
type ConnectionRow struct {
	ID        string
	Name      string
	DSN       string
	CreatedAt time.Time
}

// ConversationRow groups the messages of one chat thread against one
// connection.
type ConversationRow struct {
	ID           string
	ConnectionID string
	Title        string
	CreatedAt    time.Time
}

// MessageRow is one persisted conversation message. Tool-result messages are
// never persisted; only system, human, and AI roles appear here.
type MessageRow struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// ResultRow is one persisted result. Content is the variant's type-tagged
// JSON; LinkedID, when set, is the stored id of a causally-prior result.
type ResultRow struct {
	ID        string
	MessageID string
	Kind      string
	Content   []byte
	LinkedID  string
	CreatedAt time.Time
}

// ConnectionStore persists saved database connections.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, name, dsn string) (*ConnectionRow, error)
	GetConnection(ctx context.Context, id string) (*ConnectionRow, error)
	GetConnectionByName(ctx context.Context, name string) (*ConnectionRow, error)
	ListConnections(ctx context.Context) ([]*ConnectionRow, error)
	DeleteConnection(ctx context.Context, id string) error
}

// ConversationStore persists conversation threads.
type ConversationStore interface {
	CreateConversation(ctx context.Context, connectionID, title string) (*ConversationRow, error)
	GetConversation(ctx context.Context, id string) (*ConversationRow, error)
	ListConversations(ctx context.Context, connectionID string) ([]*ConversationRow, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID, role, content string) (*MessageRow, error)
	// ListMessages returns up to limit most-recent messages in chronological
	// order. limit <= 0 means no limit.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*MessageRow, error)
}

// ResultStore persists results and supports the post-storage link-resolution
// pass.
type ResultStore interface {
	CreateResult(ctx context.Context, messageID, kind string, content []byte, linkedID string) (*ResultRow, error)
	GetResult(ctx context.Context, id string) (*ResultRow, error)
	ListResultsForMessage(ctx context.Context, messageID string) ([]*ResultRow, error)
	UpdateLinkedID(ctx context.Context, id, linkedID string) error
	UpdateContent(ctx context.Context, id string, content []byte) error
}

// Store is the composite persistence interface.
type Store interface {
	ConnectionStore
	ConversationStore
	MessageStore
	ResultStore
	Close() error
}
