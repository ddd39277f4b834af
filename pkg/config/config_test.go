// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("TABLETALK_DATA_DIR", dataDir)
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "tabletalk.db"), cfg.Store.Path)
	assert.True(t, cfg.Store.Maintenance)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, 10, cfg.Query.HistoryLimit)
	assert.Equal(t, 12, cfg.Query.MaxSteps)
	assert.Equal(t, 20, cfg.Query.MaxToolCalls)
	assert.False(t, cfg.Query.SecureData)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("TABLETALK_DATA_DIR", dataDir)

	cfgFile := filepath.Join(dataDir, "tabletalk.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
llm:
  model: claude-test
  max_tokens: 1024
store:
  path: /tmp/custom.db
  maintenance: false
query:
  secure_data: true
logging:
  level: debug
`), 0o644))

	cfg, err := Load(cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.False(t, cfg.Store.Maintenance)
	assert.True(t, cfg.Query.SecureData)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 12, cfg.Query.MaxSteps, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TABLETALK_DATA_DIR", t.TempDir())
	t.Setenv("TABLETALK_QUERY_MAX_STEPS", "5")
	t.Setenv("TABLETALK_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Query.MaxSteps)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadAPIKeyFallback(t *testing.T) {
	t.Setenv("TABLETALK_DATA_DIR", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.LLM.APIKey)
}

func TestLoadBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("llm: [not a map"), 0o644))

	_, err := Load(cfgFile)
	assert.Error(t, err)
}
