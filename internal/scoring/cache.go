// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/metrics"
)

// ScoreCache enforces the §4.5 freshness invariant: a cached score is
// served only if it was generated no earlier than its inputs' last
// update. Late-arriving data (e.g. a sleep sync that lands after the
// day's Readiness score was first computed) forces a recompute instead
// of silently serving a stale number.
type ScoreCache[T any] struct {
	kv     *badgerkv.DB
	kind   string
	prefix string
}

// NewScoreCache constructs a ScoreCache namespaced by kind (e.g.
// "readiness", "sleep", "momentum") so the three engines can share one
// underlying database without key collisions.
func NewScoreCache[T any](kv *badgerkv.DB, kind string) *ScoreCache[T] {
	return &ScoreCache[T]{kv: kv, kind: kind, prefix: "score:" + kind + ":"}
}

type cacheEntry[T any] struct {
	Value           T
	GeneratedAt     time.Time
	InputsUpdatedAt time.Time
}

func (c *ScoreCache[T]) key(user, localDate string) string {
	return c.prefix + user + ":" + localDate
}

// GetIfFresh returns the cached value only if its InputsUpdatedAt is not
// older than latestInputUpdate — i.e. nothing the score depends on has
// changed since it was generated.
func (c *ScoreCache[T]) GetIfFresh(ctx context.Context, user, localDate string, latestInputUpdate time.Time) (T, bool, error) {
	var entry cacheEntry[T]
	var found bool
	err := c.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, c.key(user, localDate), &entry)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("read score cache: %w", err)
	}
	if !found || entry.InputsUpdatedAt.Before(latestInputUpdate) {
		metrics.ScoringCacheFreshness.WithLabelValues(c.kind, "stale_recompute").Inc()
		var zero T
		return zero, false, nil
	}
	metrics.ScoringCacheFreshness.WithLabelValues(c.kind, "fresh").Inc()
	return entry.Value, true, nil
}

// Put stores value, stamped with the inputs it was derived from.
func (c *ScoreCache[T]) Put(ctx context.Context, user, localDate string, value T, generatedAt, inputsUpdatedAt time.Time) error {
	entry := cacheEntry[T]{Value: value, GeneratedAt: generatedAt, InputsUpdatedAt: inputsUpdatedAt}
	return c.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, c.key(user, localDate), entry)
	})
}
