// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package chart renders query results into Chart.js configurations. Chart
// data is derived entirely from the tabular result: the first column supplies
// labels and each numeric column becomes a dataset, so a chart can be rebuilt
// at any time by re-running its originating query.
package chart

import (
	"fmt"
	"strconv"
)

// ChartType identifies a supported Chart.js chart kind.
type ChartType string

const (
	TypeBar      ChartType = "bar"
	TypeLine     ChartType = "line"
	TypeDoughnut ChartType = "doughnut"
	TypeScatter  ChartType = "scatter"
)

// ValidTypes lists every supported chart type, in schema-enum order.
var ValidTypes = []ChartType{TypeBar, TypeLine, TypeDoughnut, TypeScatter}

// ParseType validates a chart type string from tool input.
func ParseType(s string) (ChartType, error) {
	for _, t := range ValidTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported chart type %q; valid types are bar, line, doughnut, scatter", s)
}

// palette holds the dataset colors, cycled when a result has more numeric
// columns than colors.
var palette = []string{
	"rgba(54, 162, 235, 0.7)",
	"rgba(255, 99, 132, 0.7)",
	"rgba(255, 206, 86, 0.7)",
	"rgba(75, 192, 192, 0.7)",
	"rgba(153, 102, 255, 0.7)",
	"rgba(255, 159, 64, 0.7)",
}

// Populate builds a Chart.js configuration from a query result. The first
// column is used for labels; every column whose values are numeric becomes a
// dataset. Scatter charts instead pair the first two numeric columns as
// x/y points.
func Populate(chartType ChartType, title string, columns []string, rows [][]interface{}) (map[string]interface{}, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("cannot chart a result with no columns")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot chart an empty result")
	}

	numericCols := numericColumns(columns, rows)
	if len(numericCols) == 0 {
		return nil, fmt.Errorf("result has no numeric columns to chart")
	}

	var data map[string]interface{}
	if chartType == TypeScatter {
		scatter, err := scatterData(columns, rows, numericCols)
		if err != nil {
			return nil, err
		}
		data = scatter
	} else {
		data = labeledData(chartType, columns, rows, numericCols)
	}

	return map[string]interface{}{
		"type": string(chartType),
		"data": data,
		"options": map[string]interface{}{
			"responsive": true,
			"plugins": map[string]interface{}{
				"title": map[string]interface{}{
					"display": title != "",
					"text":    title,
				},
			},
		},
	}, nil
}

// labeledData builds the data block for label-based charts (bar, line,
// doughnut): column 0 values become labels, each numeric column a dataset.
func labeledData(chartType ChartType, columns []string, rows [][]interface{}, numericCols []int) map[string]interface{} {
	// Column 0 serves as the label axis; exclude it from datasets unless it
	// is the only numeric column.
	if len(numericCols) > 1 && numericCols[0] == 0 {
		numericCols = numericCols[1:]
	}

	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = fmt.Sprintf("%v", row[0])
	}

	datasets := make([]map[string]interface{}, 0, len(numericCols))
	for di, col := range numericCols {
		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i], _ = toFloat(row[col])
		}
		ds := map[string]interface{}{
			"label": columns[col],
			"data":  values,
		}
		if chartType == TypeDoughnut {
			// Doughnut segments each get their own color.
			colors := make([]string, len(rows))
			for i := range colors {
				colors[i] = palette[i%len(palette)]
			}
			ds["backgroundColor"] = colors
		} else {
			ds["backgroundColor"] = palette[di%len(palette)]
			ds["borderColor"] = palette[di%len(palette)]
		}
		datasets = append(datasets, ds)
	}

	return map[string]interface{}{
		"labels":   labels,
		"datasets": datasets,
	}
}

// scatterData pairs the first two numeric columns as x/y points.
func scatterData(columns []string, rows [][]interface{}, numericCols []int) (map[string]interface{}, error) {
	if len(numericCols) < 2 {
		return nil, fmt.Errorf("scatter charts need at least two numeric columns")
	}
	xCol, yCol := numericCols[0], numericCols[1]

	points := make([]map[string]float64, len(rows))
	for i, row := range rows {
		x, _ := toFloat(row[xCol])
		y, _ := toFloat(row[yCol])
		points[i] = map[string]float64{"x": x, "y": y}
	}

	return map[string]interface{}{
		"datasets": []map[string]interface{}{{
			"label":           fmt.Sprintf("%s vs %s", columns[yCol], columns[xCol]),
			"data":            points,
			"backgroundColor": palette[0],
		}},
	}, nil
}

// numericColumns reports the indexes of columns whose non-nil values all
// parse as numbers.
func numericColumns(columns []string, rows [][]interface{}) []int {
	var out []int
	for col := range columns {
		numeric := false
		for _, row := range rows {
			if col >= len(row) || row[col] == nil {
				continue
			}
			if _, ok := toFloat(row[col]); !ok {
				numeric = false
				break
			}
			numeric = true
		}
		if numeric {
			out = append(out, col)
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
