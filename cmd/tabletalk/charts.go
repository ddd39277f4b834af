// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabletalk-labs/tabletalk/internal/log"
	"github.com/tabletalk-labs/tabletalk/pkg/chart"
	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
)

var chartsConnection string

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Work with generated charts",
}

var chartsRefreshCmd = &cobra.Command{
	Use:   "refresh <result-id>",
	Short: "Re-run a chart's query and print the rebuilt chart config",
	Long: `Re-executes the SQL that produced a chart and rebuilds its Chart.js
configuration from the fresh rows. The stored query passes through the same
read-only guard as live queries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		chartRow, err := store.GetResult(ctx, args[0])
		if err != nil {
			return fmt.Errorf("no result with id %q", args[0])
		}
		if chartRow.Kind != result.KindChartGeneration {
			return fmt.Errorf("result %s is a %s, not a chart", args[0], chartRow.Kind)
		}
		if chartRow.LinkedID == "" {
			return fmt.Errorf("chart %s has no linked query to refresh from", args[0])
		}

		decoded, err := result.Decode(chartRow.Kind, chartRow.Content)
		if err != nil {
			return err
		}
		generation := decoded.(*result.ChartGeneration)
		chartType, err := chart.ParseType(generation.ChartType)
		if err != nil {
			return err
		}

		queryRow, err := store.GetResult(ctx, chartRow.LinkedID)
		if err != nil {
			return fmt.Errorf("linked query %s not found", chartRow.LinkedID)
		}
		decodedQuery, err := result.Decode(queryRow.Kind, queryRow.Content)
		if err != nil {
			return err
		}
		queryString, ok := decodedQuery.(*result.SQLQueryString)
		if !ok {
			return fmt.Errorf("chart %s links to a %s, not a SQL query", args[0], queryRow.Kind)
		}

		connection, err := store.GetConnectionByName(ctx, chartsConnection)
		if err != nil {
			return fmt.Errorf("no connection named %q", chartsConnection)
		}
		conn, err := dbal.Open(ctx, dbal.Config{DSN: connection.DSN, Logger: log.Logger()})
		if err != nil {
			return err
		}
		defer conn.Close()

		config, err := chart.Refresh(ctx, conn, chartType, "", queryString.SQL)
		if err != nil {
			return err
		}
		encoded, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}

		// Persist the refreshed config so the stored chart stays current.
		refreshed, err := result.NewChartGeneration(string(mustCompact(encoded)), generation.ChartType).Content()
		if err != nil {
			return err
		}
		if err := store.UpdateContent(ctx, chartRow.ID, refreshed); err != nil {
			return err
		}

		fmt.Println(string(encoded))
		return nil
	},
}

func mustCompact(encoded []byte) []byte {
	var buf json.RawMessage
	if err := json.Unmarshal(encoded, &buf); err != nil {
		return encoded
	}
	out, err := json.Marshal(buf)
	if err != nil {
		return encoded
	}
	return out
}

func init() {
	chartsRefreshCmd.Flags().StringVarP(&chartsConnection, "connection", "c", "", "saved connection name (required)")
	_ = chartsRefreshCmd.MarkFlagRequired("connection")
	chartsCmd.AddCommand(chartsRefreshCmd)
}
