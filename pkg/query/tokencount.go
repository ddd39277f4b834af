// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tabletalk-labs/tabletalk/pkg/llm"
)

// TokenCounter counts prompt tokens for history budgeting. Uses tiktoken with
// cl100k_base encoding, a close approximation for Claude models.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalTokenCounter *TokenCounter
	counterInitOnce    sync.Once
)

// GetTokenCounter returns the singleton token counter.
func GetTokenCounter() *TokenCounter {
	counterInitOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Fall back to char-based estimation.
			globalTokenCounter = &TokenCounter{encoder: nil}
			return
		}
		globalTokenCounter = &TokenCounter{encoder: tkm}
	})
	return globalTokenCounter
}

// CountTokens returns the token count for a text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// EstimateMessagesTokens estimates the token count of a message slice,
// including per-message structural overhead.
func (tc *TokenCounter) EstimateMessagesTokens(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += 10
		total += tc.CountTokens(msg.Content)
	}
	return total
}
