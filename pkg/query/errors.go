// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import "errors"

var (
	// ErrNotConfigured means no usable connection or model credential is on
	// file for the conversation. User-facing: the caller should prompt for
	// configuration.
	ErrNotConfigured = errors.New("no connection or model credential is configured")

	// ErrNoResponse means the turn completed without producing an AI
	// message. The engine always appends at least one AI message before
	// reaching its terminal state, so this indicates an internal invariant
	// violation, not a user error.
	ErrNoResponse = errors.New("turn produced no model response")
)
