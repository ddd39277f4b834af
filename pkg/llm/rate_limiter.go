// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig configures request pacing and retry behavior for a
// provider client.
type RateLimiterConfig struct {
	// Enabled turns the limiter on. A nil/disabled limiter passes calls through.
	Enabled bool

	// MinDelay is the minimum time between consecutive requests.
	MinDelay time.Duration

	// MaxRetries is how many times a retryable failure is retried.
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles per attempt.
	RetryBackoff time.Duration

	// Logger for retry events. Defaults to zap.NewNop.
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns conservative defaults suitable for
// low-tier API keys.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:      true,
		MinDelay:     800 * time.Millisecond,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
	}
}

// RateLimiter serializes request pacing across goroutines and retries
// rate-limited calls with exponential backoff.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimiterConfig
	lastCall time.Time
	logger   *zap.Logger
}

// NewRateLimiter creates a rate limiter from config.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{config: config, logger: logger}
}

// Do invokes fn, pacing it to MinDelay and retrying retryable failures with
// exponential backoff. A 429-style error (detected by substring) is always
// considered retryable.
func (rl *RateLimiter) Do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= rl.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := rl.config.RetryBackoff << uint(attempt-1)
			rl.logger.Warn("rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := rl.pace(ctx); err != nil {
			return nil, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// pace blocks until MinDelay has elapsed since the previous call.
func (rl *RateLimiter) pace(ctx context.Context) error {
	rl.mu.Lock()
	wait := rl.config.MinDelay - time.Since(rl.lastCall)
	rl.lastCall = time.Now().Add(wait)
	rl.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "status 529")
}
