// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor runs periodic store maintenance: deleting results orphaned by
// message removal and checkpointing the WAL so the sidecar file does not grow
// unbounded on long-lived installs.
type Janitor struct {
	store  *Store
	cron   *cron.Cron
	logger *zap.Logger
}

// NewJanitor creates a janitor for the store. Call Start to begin the hourly
// schedule and Stop to halt it.
func NewJanitor(store *Store, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, cron: cron.New(), logger: logger}
}

// Start schedules hourly maintenance runs.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := j.RunOnce(ctx); err != nil {
			j.logger.Warn("store maintenance failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for an in-flight run to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs one maintenance pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	res, err := j.store.db.ExecContext(ctx,
		"DELETE FROM results WHERE message_id NOT IN (SELECT id FROM messages)")
	if err != nil {
		return fmt.Errorf("failed to delete orphaned results: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		j.logger.Info("deleted orphaned results", zap.Int64("count", n))
	}

	if _, err := j.store.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}
