// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package forecast implements the Forecast Engine worker (§4.7): a
// recompute queue drained at a fixed poll interval, per-user trend
// projection, ETA, status chip, drivers, and simulator.
package forecast

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func modelStateKey(user string) string  { return "forecast_model:" + user }
func weightGoalKey(user string) string  { return "weight_goal:" + user }
func summaryKey(user string) string     { return "forecast_summary:" + user }

// Store persists the ModelState, WeightGoal, and latest ForecastSummary
// each user's forecast cycle reads and writes.
type Store struct {
	kv *badgerkv.DB
}

// NewStore constructs a forecast Store.
func NewStore(kv *badgerkv.DB) *Store { return &Store{kv: kv} }

// GetModelState loads a user's ModelState, returning a zero-value state
// (ok=false) if none has been trained yet.
func (s *Store) GetModelState(ctx context.Context, user string) (model.ModelState, bool, error) {
	var state model.ModelState
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, modelStateKey(user), &state)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return state, found, err
}

// PutModelState persists a user's ModelState.
func (s *Store) PutModelState(ctx context.Context, state model.ModelState) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, modelStateKey(state.User), state)
	})
}

// GetWeightGoal loads a user's WeightGoal, returning ok=false if none is set.
func (s *Store) GetWeightGoal(ctx context.Context, user string) (model.WeightGoal, bool, error) {
	var goal model.WeightGoal
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, weightGoalKey(user), &goal)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return goal, found, err
}

// PutWeightGoal persists a user's WeightGoal.
func (s *Store) PutWeightGoal(ctx context.Context, user string, goal model.WeightGoal) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, weightGoalKey(user), goal)
	})
}

// GetSummary loads a user's latest persisted ForecastSummary.
func (s *Store) GetSummary(ctx context.Context, user string) (model.ForecastSummary, bool, error) {
	var summary model.ForecastSummary
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, summaryKey(user), &summary)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return summary, found, err
}

// PutSummary persists a user's ForecastSummary under a single generated_at.
func (s *Store) PutSummary(ctx context.Context, summary model.ForecastSummary) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, summaryKey(summary.User), summary)
	})
}
