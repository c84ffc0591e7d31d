// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package users is the minimal per-user registry the Baseline
// Scheduler and the Correlation Scheduler need to enumerate who to run
// their nightly/periodic passes for, paired with each user's timezone
// so the Baseline Scheduler can fire at the right local hour.
package users

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/baseline"
)

func userKey(user string) string { return "user:" + user }

// Store persists the set of known users and their timezone.
type Store struct {
	kv *badgerkv.DB
}

// New constructs a Store.
func New(kv *badgerkv.DB) *Store { return &Store{kv: kv} }

// Upsert records user as known with timezone, overwriting any
// previously recorded timezone. Called whenever a user's data is
// ingested so the registry never falls behind actual activity.
func (s *Store) Upsert(ctx context.Context, user, timezone string) error {
	if timezone == "" {
		timezone = "UTC"
	}
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, userKey(user), baseline.UserTimezone{User: user, Timezone: timezone})
	})
}

// List returns every known user, satisfying baseline.UserLister and
// correlation's identical-shaped lister.
func (s *Store) List(ctx context.Context) ([]baseline.UserTimezone, error) {
	var out []baseline.UserTimezone
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "user:", func(key string, get func(v any) error) error {
			var ut baseline.UserTimezone
			if err := get(&ut); err != nil {
				return err
			}
			out = append(out, ut)
			return nil
		})
	})
	return out, err
}
