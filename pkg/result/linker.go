// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package result

import (
	"context"
	"fmt"

	"github.com/tabletalk-labs/tabletalk/pkg/storage"
)

// StoreAll persists a turn's results in creation order and then resolves
// cross-references in a second phase: every LinkedID that names another
// result's ephemeral id is rewritten to that result's stored id, both
// in-memory and in storage. Two phases are required because results are
// stored in causal order but a reference is established before its referent
// has a durable id.
func StoreAll(ctx context.Context, repo storage.ResultStore, messageID string, results []Result) error {
	ephemeralToStored := make(map[string]string, len(results))
	for _, r := range results {
		if err := Store(ctx, repo, r, messageID); err != nil {
			return err
		}
		ephemeralToStored[r.EphemeralID()] = r.StoredID()
	}

	for _, r := range results {
		ephemeral := r.LinkedID()
		if ephemeral == "" {
			continue
		}
		stored, ok := ephemeralToStored[ephemeral]
		if !ok {
			return fmt.Errorf("%s result links to unknown ephemeral id %s", r.Kind(), ephemeral)
		}
		if err := repo.UpdateLinkedID(ctx, r.StoredID(), stored); err != nil {
			return err
		}
		r.LinkTo(stored)
	}
	return nil
}
