// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// MockProvider is a scripted Provider for testing. Each call to Chat pops the
// next queued response; running past the script returns an error so tests
// catch unbounded loops. Thread-safe.
type MockProvider struct {
	mu        sync.Mutex
	MockName  string
	MockModel string

	// Script is the ordered list of responses to return.
	Script []*Response

	// Calls records the message list of every Chat invocation.
	Calls [][]Message

	call int
}

// Name returns the mock provider name.
func (m *MockProvider) Name() string {
	if m.MockName == "" {
		return "mock"
	}
	return m.MockName
}

// Model returns the mock model identifier.
func (m *MockProvider) Model() string {
	if m.MockModel == "" {
		return "mock-model"
	}
	return m.MockModel
}

// Chat returns the next scripted response.
func (m *MockProvider) Chat(ctx context.Context, messages []Message, tools []tool.Tool) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)
	m.Calls = append(m.Calls, snapshot)

	if m.call >= len(m.Script) {
		return nil, fmt.Errorf("mock provider: no scripted response for call %d", m.call+1)
	}
	resp := m.Script[m.call]
	m.call++
	return resp, nil
}

var _ Provider = (*MockProvider)(nil)
