// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import "strings"

// SanitizeToolName converts a tool name to LLM-provider-compatible format.
// Provider APIs restrict tool names to patterns like ^[a-zA-Z0-9_-]{1,64}$,
// so namespaced names (e.g. "db:execute_sql") have their colons replaced
// with underscores before being sent over the wire.
func SanitizeToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, ch := range name {
		if ch == ':' {
			b.WriteRune('_')
		} else {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// ReverseToolName maps a sanitized tool name back to its original.
// Returns the original name if found, otherwise the sanitized name unchanged.
func ReverseToolName(nameMap map[string]string, sanitizedName string) string {
	if original, exists := nameMap[sanitizedName]; exists {
		return original
	}
	return sanitizedName
}
