// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package chart

import (
	"context"

	"github.com/tabletalk-labs/tabletalk/pkg/dbal"
)

// Refresh re-runs a chart's originating query and rebuilds its configuration
// from the fresh rows. The query passes through the same read-only guard as
// any other execution, so a stored query that was tampered with is rejected
// rather than run.
func Refresh(ctx context.Context, conn *dbal.Conn, chartType ChartType, title, query string) (map[string]interface{}, error) {
	result, err := conn.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	return Populate(chartType, title, result.Columns, result.Rows)
}
