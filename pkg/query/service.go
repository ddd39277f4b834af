// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package query orchestrates one question-answering turn: it assembles the
// prompt from conversation history, runs the turn's state machine against the
// connected database, and persists the produced messages and results.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/graph"
	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

const (
	// DefaultHistoryLimit is how many prior messages are replayed into the
	// prompt.
	DefaultHistoryLimit = 10

	// DefaultTurnTimeout bounds one turn's wall-clock time across model
	// calls, SQL execution, and persistence.
	DefaultTurnTimeout = 5 * time.Minute

	// DefaultHistoryTokenBudget caps replayed history size; oldest messages
	// are dropped first when the budget is exceeded.
	DefaultHistoryTokenBudget = 8000
)

// Config assembles a Service.
type Config struct {
	Store    storage.Store
	Provider llm.Provider
	Logger   *zap.Logger

	// HistoryLimit overrides DefaultHistoryLimit when > 0.
	HistoryLimit int
	// TurnTimeout overrides DefaultTurnTimeout when > 0.
	TurnTimeout time.Duration
	// HistoryTokenBudget overrides DefaultHistoryTokenBudget when > 0.
	HistoryTokenBudget int
}

// Service runs query turns.
type Service struct {
	store       storage.Store
	provider    llm.Provider
	logger      *zap.Logger
	history     int
	timeout     time.Duration
	tokenBudget int
}

// New creates a query service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.HistoryTokenBudget <= 0 {
		cfg.HistoryTokenBudget = DefaultHistoryTokenBudget
	}
	return &Service{
		store:       cfg.Store,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		history:     cfg.HistoryLimit,
		timeout:     cfg.TurnTimeout,
		tokenBudget: cfg.HistoryTokenBudget,
	}
}

// TurnOptions configures one turn.
type TurnOptions struct {
	SecureData   bool
	MaxSteps     int
	MaxToolCalls int
}

// Turn is the completed outcome of one question.
type Turn struct {
	HumanMessage *storage.MessageRow
	AIMessage    *storage.MessageRow
	// Results carries the client payload for every produced result:
	// {type, result_id, linked_id, created_at, content}.
	Results []map[string]interface{}
}

// Run answers one question within a conversation. The human message is
// persisted optimistically before generation, so it survives in history even
// when a later step fails; results and the AI message are persisted only
// after the turn completes.
func (s *Service) Run(ctx context.Context, conversationID, question string, opts TurnOptions) (*Turn, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	connection, err := s.store.GetConnection(ctx, conversation.ConnectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	conn, err := dbal.Open(ctx, dbal.Config{DSN: connection.DSN, Logger: s.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	messages, err := s.assemblePrompt(ctx, conversationID, conn.Dialect(), opts.SecureData)
	if err != nil {
		return nil, err
	}

	humanRow, err := s.store.CreateMessage(ctx, conversationID, llm.RoleHuman, question)
	if err != nil {
		return nil, fmt.Errorf("failed to persist question: %w", err)
	}
	messages = append(messages, llm.Message{
		Role:      llm.RoleHuman,
		Content:   question,
		Timestamp: humanRow.CreatedAt,
	})

	state := graph.NewState(messages, graph.Options{
		SecureData:   opts.SecureData,
		MaxSteps:     opts.MaxSteps,
		MaxToolCalls: opts.MaxToolCalls,
	})

	engine := graph.New(s.provider, conn, s.logger)
	if err := engine.Run(ctx, state); err != nil {
		return nil, fmt.Errorf("turn failed: %w", err)
	}

	aiMessage := state.LastAIMessage()
	if aiMessage == nil {
		return nil, ErrNoResponse
	}

	aiRow, err := s.store.CreateMessage(ctx, conversationID, llm.RoleAI, aiMessage.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to persist answer: %w", err)
	}

	if err := result.StoreAll(ctx, s.store, aiRow.ID, state.Results); err != nil {
		return nil, fmt.Errorf("failed to persist results: %w", err)
	}

	turn := &Turn{
		HumanMessage: humanRow,
		AIMessage:    aiRow,
		Results:      make([]map[string]interface{}, 0, len(state.Results)),
	}
	for _, r := range state.Results {
		turn.Results = append(turn.Results, envelope(r))
	}

	s.logger.Info("turn completed",
		zap.String("conversation_id", conversationID),
		zap.Int("results", len(state.Results)),
		zap.Bool("secure_data", opts.SecureData))
	return turn, nil
}

// assemblePrompt builds the system prompt plus replayed history. Prior SQL
// generations are reconstructed as synthetic AI messages so the model keeps
// SQL context across turns without replaying tool-call machinery.
func (s *Service) assemblePrompt(ctx context.Context, conversationID string, dialect dbal.Dialect, secureData bool) ([]llm.Message, error) {
	history, err := s.store.ListMessages(ctx, conversationID, s.history)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var replayed []llm.Message
	for _, row := range history {
		switch row.Role {
		case llm.RoleHuman, llm.RoleAI, llm.RoleSystem:
		default:
			continue
		}
		replayed = append(replayed, llm.Message{
			Role:      row.Role,
			Content:   row.Content,
			Timestamp: row.CreatedAt,
		})

		if row.Role != llm.RoleAI {
			continue
		}
		sql, err := s.priorSQL(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		for _, stmt := range sql {
			replayed = append(replayed, llm.Message{
				Role:      llm.RoleAI,
				Content:   "Generated SQL: " + stmt,
				Timestamp: row.CreatedAt,
			})
		}
	}

	counter := GetTokenCounter()
	for len(replayed) > 0 && counter.EstimateMessagesTokens(replayed) > s.tokenBudget {
		replayed = replayed[1:]
	}

	messages := make([]llm.Message, 0, len(replayed)+1)
	messages = append(messages, llm.Message{
		Role:      llm.RoleSystem,
		Content:   systemPrompt(dialect, secureData),
		Timestamp: time.Now(),
	})
	return append(messages, replayed...), nil
}

// priorSQL returns the SQL statements generated under a past AI message.
func (s *Service) priorSQL(ctx context.Context, messageID string) ([]string, error) {
	rows, err := s.store.ListResultsForMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for message %s: %w", messageID, err)
	}

	var out []string
	for _, row := range rows {
		if row.Kind != result.KindSQLQueryString {
			continue
		}
		decoded, err := result.Decode(row.Kind, row.Content)
		if err != nil {
			return nil, err
		}
		if qs, ok := decoded.(*result.SQLQueryString); ok {
			out = append(out, qs.SQL)
		}
	}
	return out, nil
}

// envelope builds the client payload for one result.
func envelope(r result.Result) map[string]interface{} {
	var linked interface{}
	if id := r.LinkedID(); id != "" {
		linked = id
	}
	return map[string]interface{}{
		"type":       r.Kind(),
		"result_id":  r.StoredID(),
		"linked_id":  linked,
		"created_at": r.CreatedAt().UTC().Format(time.RFC3339Nano),
		"content":    r.Serialize(),
	}
}
