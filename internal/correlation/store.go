// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package correlation

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func cardKey(id string) string { return "insightcard:" + id }
func signatureKey(user, signature string) string {
	return "insightcard_sig:" + user + ":" + signature
}

// Store persists insight cards and the per-user pattern_signature index
// used to suppress re-creating the same claimed pattern on every pass.
type Store struct {
	kv *badgerkv.DB
}

// NewStore constructs a correlation Store.
func NewStore(kv *badgerkv.DB) *Store { return &Store{kv: kv} }

// HasActiveSignature reports whether user already has a non-dismissed
// card with this pattern_signature, so the scanner can skip re-creating it.
func (s *Store) HasActiveSignature(ctx context.Context, user, signature string) (bool, error) {
	var id string
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, signatureKey(user, signature), &id)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return false, err
	}
	var card model.InsightCard
	err = s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.GetJSON(txn, cardKey(id), &card)
	})
	if err == badgerkv.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !card.IsDismissed, nil
}

// Create persists a new insight card and indexes its pattern_signature.
func (s *Store) Create(ctx context.Context, card model.InsightCard) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := badgerkv.PutJSON(txn, cardKey(card.Id), card); err != nil {
			return err
		}
		return badgerkv.PutJSON(txn, signatureKey(card.User, card.PatternSignature), card.Id)
	})
}

// Get loads a card by id.
func (s *Store) Get(ctx context.Context, id string) (model.InsightCard, bool, error) {
	var card model.InsightCard
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, cardKey(id), &card)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return card, found, err
}

// Dismiss marks a card dismissed, freeing its pattern_signature to be
// re-claimed by a future scan.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		var card model.InsightCard
		if err := badgerkv.GetJSON(txn, cardKey(id), &card); err != nil {
			return err
		}
		card.IsDismissed = true
		return badgerkv.PutJSON(txn, cardKey(id), card)
	})
}

// ListActive returns every non-dismissed card for user.
func (s *Store) ListActive(ctx context.Context, user string) ([]model.InsightCard, error) {
	var cards []model.InsightCard
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "insightcard:", func(key string, get func(v any) error) error {
			var card model.InsightCard
			if err := get(&card); err != nil {
				return err
			}
			if card.User == user && !card.IsDismissed {
				cards = append(cards, card)
			}
			return nil
		})
	})
	return cards, err
}
