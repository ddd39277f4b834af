// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabletalk-labs/tabletalk/pkg/chart"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
)

// ChartData supplies the tabular data a chart is built from: the most recent
// query result the model executed for charting. The bool reports whether any
// such result exists yet.
type ChartData func() (columns []string, rows [][]interface{}, ok bool)

// GenerateChartTool renders the latest chart-bound query result into a
// Chart.js configuration.
type GenerateChartTool struct {
	data ChartData
}

func NewGenerateChartTool(data ChartData) *GenerateChartTool {
	return &GenerateChartTool{data: data}
}

func (t *GenerateChartTool) Name() string {
	return tool.NameGenerateChart
}

func (t *GenerateChartTool) Description() string {
	return `Generates a chart from the most recent SQL result that was executed
with for_chart=true. Run execute_sql with for_chart=true first, shaping the
query so the first column holds labels and later columns hold numeric values.`
}

func (t *GenerateChartTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema(
		"Parameters for generating a chart",
		map[string]*tool.JSONSchema{
			"chart_type": tool.NewStringSchema("The kind of chart to generate").
				WithEnum("bar", "line", "doughnut", "scatter"),
			"title": tool.NewStringSchema("Chart title shown above the plot"),
		},
		[]string{"chart_type"},
	)
}

func (t *GenerateChartTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	rawType, ok := params["chart_type"].(string)
	if !ok || rawType == "" {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "INVALID_PARAMS",
				Message:    "chart_type is required",
				Suggestion: "Provide one of: bar, line, doughnut, scatter",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	chartType, err := chart.ParseType(rawType)
	if err != nil {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "INVALID_PARAMS",
				Message:    err.Error(),
				Suggestion: "Provide one of: bar, line, doughnut, scatter",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	title, _ := params["title"].(string)

	columns, rows, ok := t.data()
	if !ok {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "NO_CHART_DATA",
				Message:    "no query result is available to chart",
				Suggestion: "Run execute_sql with for_chart=true first, then generate the chart",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	config, err := chart.Populate(chartType, title, columns, rows)
	if err != nil {
		return &tool.Result{
			Success: false,
			Error: &tool.Error{
				Code:       "CHART_GENERATION_FAILED",
				Message:    err.Error(),
				Suggestion: "Re-run execute_sql with a result shaped for charting: a label column followed by numeric columns",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	encoded, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("generate_chart: failed to encode config: %w", err)
	}

	return &tool.Result{
		Success: true,
		Data:    string(encoded),
		Metadata: map[string]interface{}{
			"chart_type": string(chartType),
			"title":      title,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

var _ tool.Tool = (*GenerateChartTool)(nil)
