// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbal

import (
	"fmt"
	"strings"
)

// QueryError indicates a statement was rejected or failed to execute. It is a
// recoverable condition: the text is fed back to the model for
// self-correction, not raised out of the turn.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// UnknownTableError reports table names that do not exist, enumerating the
// valid names so the model can retry with corrected input.
type UnknownTableError struct {
	Requested []string
	Valid     []string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table(s) %s; valid tables are: %s",
		strings.Join(e.Requested, ", "), strings.Join(e.Valid, ", "))
}
