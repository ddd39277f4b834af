// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package tool

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArguments validates tool arguments against the tool's JSON Schema.
// A validation failure is recoverable: the caller feeds the error text back to
// the model rather than aborting the turn.
func ValidateArguments(t Tool, arguments map[string]interface{}) error {
	schema := t.InputSchema()
	if schema == nil {
		return nil // no schema = no validation
	}

	schemaJSON, err := schema.ToJSON()
	if err != nil {
		return fmt.Errorf("schema marshal failed: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	argsLoader := gojsonschema.NewGoLoader(arguments)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			errs[i] = verr.String()
		}
		return fmt.Errorf("invalid arguments for %s: %v", t.Name(), errs)
	}

	return nil
}
