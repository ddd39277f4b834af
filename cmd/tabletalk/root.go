// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabletalk-labs/tabletalk/internal/log"
	"github.com/tabletalk-labs/tabletalk/pkg/config"
	"github.com/tabletalk-labs/tabletalk/pkg/storage/sqlite"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tabletalk",
	Short: "Ask questions about your databases in plain language",
	Long: `tabletalk connects a language model to your SQL databases. It lists
tables, inspects schemas, generates and runs read-only SQL, and can render
results as charts, all from a natural-language question.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := log.Init(cfg.Logging.Level, cfg.Logging.JSON); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return os.MkdirAll(cfg.DataDir, 0o755)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: tabletalk.yaml in data dir or current dir)")
	rootCmd.PersistentFlags().String("log-level", "",
		"override log level (debug, info, warn, error)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(chartsCmd)
}

// openStore opens the local conversation store. With maintenance enabled, a
// cleanup pass runs opportunistically on open; CLI invocations are too short
// for the hourly schedule to ever fire.
func openStore(ctx context.Context) (*sqlite.Store, error) {
	store, err := sqlite.Open(ctx, cfg.Store.Path, log.Logger())
	if err != nil {
		return nil, err
	}
	if cfg.Store.Maintenance {
		janitor := sqlite.NewJanitor(store, log.Logger())
		if err := janitor.RunOnce(ctx); err != nil {
			log.Logger().Warn("store maintenance failed", zap.Error(err))
		}
	}
	return store, nil
}
