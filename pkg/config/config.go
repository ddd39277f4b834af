// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads application configuration.
// Priority: CLI flags > config file > env vars > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the config file (tabletalk.yaml).
const DefaultConfigFileName = "tabletalk"

// Config holds all application configuration.
type Config struct {
	// DataDir is computed from TABLETALK_DATA_DIR or ~/.tabletalk, not
	// loaded from the config file.
	DataDir string `mapstructure:"-"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Store   StoreConfig   `mapstructure:"store"`
	Query   QueryConfig   `mapstructure:"query"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig holds model provider configuration.
type LLMConfig struct {
	// APIKey for the Anthropic API. Falls back to ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"api_key"`

	// Model overrides the provider default model.
	Model string `mapstructure:"model"`

	// MaxTokens caps completion length.
	MaxTokens int `mapstructure:"max_tokens"`

	// Temperature for sampling.
	Temperature float64 `mapstructure:"temperature"`
}

// StoreConfig holds local store configuration.
type StoreConfig struct {
	// Path to the SQLite store. Defaults to <data dir>/tabletalk.db.
	Path string `mapstructure:"path"`

	// Maintenance enables the hourly store janitor.
	Maintenance bool `mapstructure:"maintenance"`
}

// QueryConfig holds per-turn defaults.
type QueryConfig struct {
	// SecureData keeps row values out of the model's context by default.
	SecureData bool `mapstructure:"secure_data"`

	// HistoryLimit is how many prior messages are replayed per turn.
	HistoryLimit int `mapstructure:"history_limit"`

	// MaxSteps caps model invocations per turn.
	MaxSteps int `mapstructure:"max_steps"`

	// MaxToolCalls caps tool invocations per turn.
	MaxToolCalls int `mapstructure:"max_tool_calls"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// JSON switches from console to JSON output.
	JSON bool `mapstructure:"json"`
}

// DataDir returns the application data directory: TABLETALK_DATA_DIR when
// set, otherwise ~/.tabletalk. Read from os.Getenv directly since it locates
// the config file before viper is initialized.
func DataDir() string {
	if dir := os.Getenv("TABLETALK_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tabletalk"
	}
	return filepath.Join(home, ".tabletalk")
}

// Load reads configuration from cfgFile, or from tabletalk.yaml in the data
// directory and current directory when cfgFile is empty. A missing config
// file is not an error; env vars (TABLETALK_*) and defaults still apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("TABLETALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.DataDir = DataDir()
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "tabletalk.db")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 1.0)

	v.SetDefault("store.maintenance", true)

	v.SetDefault("query.secure_data", false)
	v.SetDefault("query.history_limit", 10)
	v.SetDefault("query.max_steps", 12)
	v.SetDefault("query.max_tool_calls", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
