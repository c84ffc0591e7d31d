// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lifeevents persists the user-logged event log (alcohol,
// travel, illness, ...) the correlation scanner reads to propose
// patterns. It is deliberately thin: a timestamped, categorised note,
// stored the same badgerkv way as every other append-mostly record in
// this pipeline.
package lifeevents

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func eventKey(user, id string) string { return "lifeevent:" + user + ":" + id }

// Store persists model.LifeEvent records keyed by user so a scan window
// can be read back with a single prefix scan.
type Store struct {
	kv *badgerkv.DB
}

// New constructs a Store.
func New(kv *badgerkv.DB) *Store { return &Store{kv: kv} }

// Create persists a new life event, stamping Id and CreatedAt-equivalent
// OccurredAt default of now when the caller leaves it zero.
func (s *Store) Create(ctx context.Context, user, category string, occurredAt time.Time, notes *string) (model.LifeEvent, error) {
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	ev := model.LifeEvent{Id: uuid.NewString(), User: user, Category: category, OccurredAt: occurredAt, Notes: notes}
	err := s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, eventKey(user, ev.Id), ev)
	})
	if err != nil {
		return model.LifeEvent{}, err
	}
	return ev, nil
}

// ListSince returns every event for user with OccurredAt on or after
// sinceDate (YYYY-MM-DD), satisfying internal/correlation.EventLister.
func (s *Store) ListSince(ctx context.Context, user string, sinceDate string) ([]model.LifeEvent, error) {
	cutoff, err := time.Parse("2006-01-02", sinceDate)
	if err != nil {
		return nil, err
	}
	var events []model.LifeEvent
	err = s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "lifeevent:"+user+":", func(key string, get func(v any) error) error {
			var ev model.LifeEvent
			if err := get(&ev); err != nil {
				return err
			}
			if !ev.OccurredAt.Before(cutoff) {
				events = append(events, ev)
			}
			return nil
		})
	})
	return events, err
}
