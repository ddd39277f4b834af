// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
	"github.com/tabletalk-labs/tabletalk/pkg/llm"
	"github.com/tabletalk-labs/tabletalk/pkg/result"
	"github.com/tabletalk-labs/tabletalk/pkg/tool"
	"github.com/tabletalk-labs/tabletalk/pkg/tool/builtin"
)

// Engine executes one turn. It is built per turn and not reusable across
// concurrent turns; the database connection and provider it holds are owned
// by the caller.
type Engine struct {
	provider llm.Provider
	conn     *dbal.Conn
	logger   *zap.Logger
}

// New creates an engine for one turn.
func New(provider llm.Provider, conn *dbal.Conn, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: provider, conn: conn, logger: logger}
}

// Run drives the state machine to completion, mutating state in place. Tool
// failures the model can correct become tool-result messages; failures of the
// engine's own collaborators (provider, connection, unusable listing) abort
// the turn with an error and leave nothing persisted.
func (e *Engine) Run(ctx context.Context, state *State) error {
	listTool := builtin.NewListTablesTool(e.conn)
	describeTool := builtin.NewDescribeTablesTool(e.conn, true)
	execTool := builtin.NewExecuteSQLTool(e.conn)
	chartTool := builtin.NewGenerateChartTool(func() ([]string, [][]interface{}, bool) {
		for i := len(state.Results) - 1; i >= 0; i-- {
			if run, ok := state.Results[i].(*result.SQLQueryRun); ok && run.ForChart {
				return run.Columns, run.Rows, true
			}
		}
		return nil, nil, false
	})

	registry := tool.NewRegistry()
	for _, t := range []tool.Tool{listTool, describeTool, execTool, chartTool} {
		registry.Register(t)
	}

	node := NodeListTables
	modelCalls := 0
	toolCalls := 0

	for node != NodeEnd {
		e.logger.Debug("entering node", zap.Stringer("node", node))

		switch node {
		case NodeListTables:
			res, err := listTool.Execute(ctx, nil)
			if err != nil {
				return err
			}
			tables := listTool.Tables(res)
			state.Results = append(state.Results, result.NewSelectedTables(tables))
			state.Messages = append(state.Messages, llm.Message{
				Role:      llm.RoleSystem,
				Content:   "Tables available in the connected database: " + strings.Join(tables, ", "),
				Timestamp: time.Now(),
			})
			node = NodeModel

		case NodeModel:
			capped := modelCalls >= state.Options.MaxSteps || toolCalls >= state.Options.MaxToolCalls
			boundTools := registry.ListTools()
			if capped {
				// Force a text answer: with no tools bound the model cannot
				// extend the loop further.
				boundTools = nil
				e.logger.Warn("turn limit reached, forcing final answer",
					zap.Int("model_calls", modelCalls),
					zap.Int("tool_calls", toolCalls))
			}

			resp, err := e.provider.Chat(ctx, state.Messages, boundTools)
			if err != nil {
				return fmt.Errorf("model call failed: %w", err)
			}
			modelCalls++

			state.Messages = append(state.Messages, llm.Message{
				Role:      llm.RoleAI,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
				Timestamp: time.Now(),
			})

			if capped || len(resp.ToolCalls) == 0 {
				node = NodeEnd
			} else {
				node = NodeTool
			}

		case NodeTool:
			last := state.Messages[len(state.Messages)-1]
			// Calls are processed one at a time in emission order: later
			// calls may depend on earlier side effects, and state is not
			// safe for concurrent mutation.
			for _, call := range last.ToolCalls {
				toolCalls++
				content, err := e.dispatch(ctx, state, registry, call)
				if err != nil {
					return err
				}
				state.Messages = append(state.Messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    content,
					ToolCallID: call.ID,
					Timestamp:  time.Now(),
				})
			}
			node = NodeModel
		}
	}

	return nil
}

// dispatch executes one tool call and returns the tool-result message content
// fed back to the model. Recoverable failures come back as content; a non-nil
// error aborts the turn.
func (e *Engine) dispatch(ctx context.Context, state *State, registry *tool.Registry, call llm.ToolCall) (string, error) {
	t, ok := registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s",
			call.Name, strings.Join(registry.List(), ", ")), nil
	}

	e.logger.Debug("dispatching tool call",
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID))

	switch call.Name {
	case tool.NameExecuteSQL:
		return e.dispatchExecuteSQL(ctx, state, t, call)
	case tool.NameDescribeTables:
		return e.dispatchDescribeTables(ctx, state, t, call)
	case tool.NameGenerateChart:
		return e.dispatchGenerateChart(ctx, state, t, call)
	default:
		return e.dispatchGeneric(ctx, t, call)
	}
}

// dispatchExecuteSQL synthesizes a SQLQueryString result before executing, so
// the generated SQL is auditable even when execution fails, then records the
// executed rows as a SQLQueryRun linked back to its query string.
func (e *Engine) dispatchExecuteSQL(ctx context.Context, state *State, t tool.Tool, call llm.ToolCall) (string, error) {
	query, _ := call.Input["query"].(string)
	forChart, _ := call.Input["for_chart"].(bool)

	var queryString *result.SQLQueryString
	if query != "" {
		queryString = result.NewSQLQueryString(query, forChart)
		state.Results = append(state.Results, queryString)
	}

	if err := tool.ValidateArguments(t, call.Input); err != nil {
		return "Error: " + err.Error(), nil
	}

	res, err := t.Execute(ctx, call.Input)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return res.Error.Text(), nil
	}

	runResult, ok := res.Data.(*dbal.RunResult)
	if !ok {
		return "", fmt.Errorf("execute_sql returned unexpected data type %T", res.Data)
	}

	run := result.NewSQLQueryRun(runResult.Columns, runResult.Rows, state.Options.SecureData, forChart)
	if queryString != nil {
		run.LinkTo(queryString.EphemeralID())
	}
	state.Results = append(state.Results, run)

	if state.Options.SecureData {
		return secureShape(runResult), nil
	}

	literal, err := json.Marshal(map[string]interface{}{
		"columns":   runResult.Columns,
		"rows":      runResult.Rows,
		"truncated": runResult.Truncated,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode query result: %w", err)
	}
	return string(literal), nil
}

// dispatchDescribeTables additionally records which tables were found valid
// as a SelectedTables result.
func (e *Engine) dispatchDescribeTables(ctx context.Context, state *State, t tool.Tool, call llm.ToolCall) (string, error) {
	if err := tool.ValidateArguments(t, call.Input); err != nil {
		return "Error: " + err.Error(), nil
	}

	res, err := t.Execute(ctx, call.Input)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return res.Error.Text(), nil
	}

	if names, ok := res.Metadata["tables"].([]string); ok && len(names) > 0 {
		state.Results = append(state.Results, result.NewSelectedTables(names))
	}

	description, _ := res.Data.(string)
	return description, nil
}

// dispatchGenerateChart records the rendered chart as a ChartGeneration
// linked to the query string that produced its data.
func (e *Engine) dispatchGenerateChart(ctx context.Context, state *State, t tool.Tool, call llm.ToolCall) (string, error) {
	if err := tool.ValidateArguments(t, call.Input); err != nil {
		return "Error: " + err.Error(), nil
	}

	res, err := t.Execute(ctx, call.Input)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return res.Error.Text(), nil
	}

	chartJSON, _ := res.Data.(string)
	chartType, _ := res.Metadata["chart_type"].(string)

	generation := result.NewChartGeneration(chartJSON, chartType)
	// The chart links to the SQLQueryString whose run supplied the data, the
	// same referent its source run links to.
	for i := len(state.Results) - 1; i >= 0; i-- {
		if run, ok := state.Results[i].(*result.SQLQueryRun); ok && run.ForChart {
			generation.LinkTo(run.LinkedID())
			break
		}
	}
	state.Results = append(state.Results, generation)

	return fmt.Sprintf("Generated a %s chart. It is displayed to the user alongside your answer.", chartType), nil
}

// dispatchGeneric stringifies any other tool's response.
func (e *Engine) dispatchGeneric(ctx context.Context, t tool.Tool, call llm.ToolCall) (string, error) {
	if err := tool.ValidateArguments(t, call.Input); err != nil {
		return "Error: " + err.Error(), nil
	}

	res, err := t.Execute(ctx, call.Input)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return res.Error.Text(), nil
	}

	switch data := res.Data.(type) {
	case string:
		return data, nil
	case nil:
		return "OK", nil
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("%v", data), nil
		}
		return string(encoded), nil
	}
}

// secureShape describes a query result without exposing any cell value: only
// column names, the value types of the first row, and the row count.
func secureShape(rr *dbal.RunResult) string {
	var b strings.Builder
	b.WriteString("Query executed successfully. Row values are withheld from you in secure mode; the user sees the full result.\n")
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(rr.Columns, ", "))
	if len(rr.Rows) > 0 {
		types := make([]string, len(rr.Rows[0]))
		for i, v := range rr.Rows[0] {
			types[i] = valueTypeName(v)
		}
		fmt.Fprintf(&b, "First row value types: %s\n", strings.Join(types, ", "))
	}
	fmt.Fprintf(&b, "Row count: %d", len(rr.Rows))
	return b.String()
}

func valueTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "float"
	case bool:
		return "boolean"
	case time.Time:
		return "timestamp"
	default:
		return fmt.Sprintf("%T", v)
	}
}
