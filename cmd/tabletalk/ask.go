// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tabletalk-labs/tabletalk/internal/log"
	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/llm/anthropic"
	"github.com/tabletalk-labs/tabletalk/pkg/query"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
)

var (
	askConnection   string
	askConversation string
	askSecure       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about a connected database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		ctx := cmd.Context()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		connection, err := store.GetConnectionByName(ctx, askConnection)
		if err != nil {
			return fmt.Errorf("no connection named %q; add one with: tabletalk connections add", askConnection)
		}

		conversationID := askConversation
		if conversationID == "" {
			conversation, err := store.CreateConversation(ctx, connection.ID, truncateTitle(question))
			if err != nil {
				return err
			}
			conversationID = conversation.ID
			fmt.Printf("Conversation: %s\n\n", conversationID)
		}

		provider := newProvider()
		service := query.New(query.Config{
			Store:        store,
			Provider:     provider,
			Logger:       log.Logger(),
			HistoryLimit: cfg.Query.HistoryLimit,
		})

		turn, err := service.Run(ctx, conversationID, question, query.TurnOptions{
			SecureData:   askSecure || cfg.Query.SecureData,
			MaxSteps:     cfg.Query.MaxSteps,
			MaxToolCalls: cfg.Query.MaxToolCalls,
		})
		if errors.Is(err, query.ErrNotConfigured) {
			return errors.New("no Anthropic API key configured; set ANTHROPIC_API_KEY or llm.api_key")
		}
		if err != nil {
			return err
		}

		printTurn(turn)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askConnection, "connection", "c", "", "saved connection name (required)")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "continue an existing conversation by id")
	askCmd.Flags().BoolVar(&askSecure, "secure", false, "keep row values out of the model's context")
	_ = askCmd.MarkFlagRequired("connection")
}

// newProvider builds the model provider, or nil when no credential is
// configured so the service fails with its not-configured error.
func newProvider() llm.Provider {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	return anthropic.NewClient(anthropic.Config{
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		RateLimiterConfig: llm.DefaultRateLimiterConfig(),
	})
}

func printTurn(turn *query.Turn) {
	fmt.Println(turn.AIMessage.Content)

	for _, res := range turn.Results {
		kind, _ := res["type"].(string)
		content, _ := res["content"].(map[string]interface{})
		switch kind {
		case result.KindSQLQueryString:
			if sql, ok := content["sql"].(string); ok {
				fmt.Printf("\nSQL:\n%s\n", sql)
			}
		case result.KindSQLQueryRun:
			printRun(content)
		case result.KindChartGeneration:
			if chartType, ok := content["chart_type"].(string); ok {
				fmt.Printf("\n[%s chart generated; config in result %v]\n", chartType, res["result_id"])
			}
		}
	}
}

func printRun(content map[string]interface{}) {
	columns, _ := content["columns"].([]string)
	rows, _ := content["rows"].([][]interface{})
	if len(columns) == 0 {
		return
	}

	fmt.Printf("\n%s\n", strings.Join(columns, " | "))
	fmt.Println(strings.Repeat("-", len(strings.Join(columns, " | "))))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%v", cell)
		}
		fmt.Println(strings.Join(cells, " | "))
	}
}

func truncateTitle(question string) string {
	const max = 80
	if len(question) <= max {
		return question
	}
	return question[:max]
}
