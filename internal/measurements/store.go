// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package measurements implements the Measurement Store: session and
// measurement persistence, intra-session and historical deduplication,
// and history queries. Every write routes a fresh or edited measurement
// through the normalisation engine first -- the store never persists a
// value that hasn't been canonicalised.
package measurements

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/metrics"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/normalize"
	"github.com/flomentum/vitalscore/pkg/logging"
)

func sessionKey(id string) string { return "session:" + id }
func measurementKey(id string) string { return "measurement:" + id }

// historyKey indexes a measurement by (user, biomarker) for §4.2's
// getHistory/getLatestFor/checkDuplicate queries; the trailing id keeps
// entries for the same biomarker distinct under the shared prefix.
func historyKey(user, biomarkerId, measurementId string) string {
	return fmt.Sprintf("history:%s:%s:%s", user, biomarkerId, measurementId)
}

// Store is the Measurement Store. It is safe for concurrent use: the
// underlying badger transactions serialise conflicting writes, and per
// spec.md §5 no cross-request locking is required because the
// (session, biomarker_id) uniqueness constraint is enforced here, not by
// an external caller's discipline.
type Store struct {
	kv      *badgerkv.DB
	catalog normalize.CatalogReader
	epsilon float64
	logger  *logging.Logger
}

// New constructs a Store. epsilon is the DEDUP_EPSILON_FRACTION config
// value (§9 Open Question: centralised here rather than duplicated per
// call site).
func New(kv *badgerkv.DB, catalog normalize.CatalogReader, epsilon float64, logger *logging.Logger) *Store {
	return &Store{kv: kv, catalog: catalog, epsilon: epsilon, logger: logger}
}

// CreateSession starts a new TestSession for a batch of measurements
// collected together.
func (s *Store) CreateSession(ctx context.Context, user string, source model.MeasurementSource, testDate time.Time, notes *string) (model.TestSession, error) {
	now := time.Now().UTC()
	session := model.TestSession{
		Id:        uuid.NewString(),
		User:      user,
		Source:    source,
		TestDate:  testDate,
		Notes:     notes,
		CreatedAt: now,
	}
	err := s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, sessionKey(session.Id), session)
	})
	if err != nil {
		return model.TestSession{}, apierr.Wrap(apierr.KindExternalStoreError, "create session", err)
	}
	return session, nil
}

// measurementsOfSession loads every measurement currently in a session.
func (s *Store) measurementsOfSession(txn *badger.Txn, sessionId string) ([]model.Measurement, error) {
	var all []model.Measurement
	err := badgerkv.ScanPrefix(txn, "measurement:", func(_ string, get func(any) error) error {
		var m model.Measurement
		if err := get(&m); err != nil {
			return err
		}
		if m.Session == sessionId {
			all = append(all, m)
		}
		return nil
	})
	return all, err
}

// CreateMeasurement normalises input, enforces the intra-session and
// historical dedup policy, and persists the result. It returns
// *apierr.Error{Kind: DuplicateMeasurement} without writing anything when
// either policy rejects the value.
func (s *Store) CreateMeasurement(ctx context.Context, sessionId string, source model.MeasurementSource, input normalize.Input, normCtx model.NormalisationContext, testDate time.Time) (model.Measurement, error) {
	result, err := normalize.Normalise(s.catalog, input, normCtx)
	if err != nil {
		if kind, ok := apierr.KindOf(err); ok {
			metrics.NormalizationFailures.WithLabelValues(string(kind)).Inc()
		}
		return model.Measurement{}, err
	}

	now := time.Now().UTC()
	m := model.Measurement{
		Id:                   uuid.NewString(),
		Session:              sessionId,
		BiomarkerId:          result.BiomarkerId,
		Source:               source,
		ValueRaw:             input.Value,
		UnitRaw:              input.Unit,
		ValueCanonical:       result.ValueCanonical,
		UnitCanonical:        result.UnitCanonical,
		ValueDisplay:         result.ValueCanonical,
		Flags:                result.Flags,
		Warnings:             result.Warnings,
		NormalizationContext: result.ContextUsed,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if result.SelectedRange != nil {
		low, high := result.SelectedRange.Low, result.SelectedRange.High
		m.ReferenceLow, m.ReferenceHigh = &low, &high
	}

	var session model.TestSession
	err = s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := badgerkv.GetJSON(txn, sessionKey(sessionId), &session); err != nil {
			return fmt.Errorf("load session %s: %w", sessionId, err)
		}

		existing, err := s.measurementsOfSession(txn, sessionId)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.BiomarkerId == m.BiomarkerId {
				return apierr.New(apierr.KindDuplicateMeasurement,
					"biomarker "+m.BiomarkerId+" already recorded in this session")
			}
		}

		if dup, err := s.findDuplicateLocked(txn, session.User, m.BiomarkerId, m.ValueCanonical, session.TestDate); err != nil {
			return err
		} else if dup != nil {
			return apierr.New(apierr.KindDuplicateMeasurement,
				"a measurement within dedup tolerance already exists for this user/biomarker/date")
		}

		if err := badgerkv.PutJSON(txn, measurementKey(m.Id), m); err != nil {
			return err
		}
		return badgerkv.PutJSON(txn, historyKey(session.User, m.BiomarkerId, m.Id), m)
	})
	if err != nil {
		if apiErr, ok := err.(*apierr.Error); ok {
			return model.Measurement{}, apiErr
		}
		return model.Measurement{}, apierr.Wrap(apierr.KindExternalStoreError, "create measurement", err)
	}
	return m, nil
}

// UpdateMeasurement re-runs normalisation on a corrected (name, value,
// unit) triple and persists the result. A previously ai_extracted
// measurement transitions to corrected; a manual one stays manual.
func (s *Store) UpdateMeasurement(ctx context.Context, id string, input normalize.Input, normCtx model.NormalisationContext, updatedBy string) (model.Measurement, error) {
	result, err := normalize.Normalise(s.catalog, input, normCtx)
	if err != nil {
		if kind, ok := apierr.KindOf(err); ok {
			metrics.NormalizationFailures.WithLabelValues(string(kind)).Inc()
		}
		return model.Measurement{}, err
	}

	var updated model.Measurement
	err = s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		var existing model.Measurement
		if err := badgerkv.GetJSON(txn, measurementKey(id), &existing); err != nil {
			return apierr.Wrap(apierr.KindNotFound, "measurement "+id+" not found", err)
		}

		updated = existing
		updated.BiomarkerId = result.BiomarkerId
		updated.ValueRaw = input.Value
		updated.UnitRaw = input.Unit
		updated.ValueCanonical = result.ValueCanonical
		updated.UnitCanonical = result.UnitCanonical
		updated.ValueDisplay = result.ValueCanonical
		updated.Flags = result.Flags
		updated.Warnings = result.Warnings
		updated.NormalizationContext = result.ContextUsed
		updated.UpdatedAt = time.Now().UTC()
		updated.UpdatedBy = &updatedBy
		if result.SelectedRange != nil {
			low, high := result.SelectedRange.Low, result.SelectedRange.High
			updated.ReferenceLow, updated.ReferenceHigh = &low, &high
		} else {
			updated.ReferenceLow, updated.ReferenceHigh = nil, nil
		}
		if updated.Source == model.SourceAIExtracted {
			updated.Source = model.SourceCorrected
		}

		if err := badgerkv.PutJSON(txn, measurementKey(updated.Id), updated); err != nil {
			return err
		}
		var session model.TestSession
		if err := badgerkv.GetJSON(txn, sessionKey(updated.Session), &session); err == nil {
			return badgerkv.PutJSON(txn, historyKey(session.User, updated.BiomarkerId, updated.Id), updated)
		}
		return nil
	})
	if err != nil {
		if apiErr, ok := err.(*apierr.Error); ok {
			return model.Measurement{}, apiErr
		}
		return model.Measurement{}, apierr.Wrap(apierr.KindExternalStoreError, "update measurement", err)
	}
	return updated, nil
}

// DeleteMeasurement removes a measurement. If it was the last one in its
// session, the session is deleted too.
func (s *Store) DeleteMeasurement(ctx context.Context, id string) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		var m model.Measurement
		if err := badgerkv.GetJSON(txn, measurementKey(id), &m); err != nil {
			return apierr.Wrap(apierr.KindNotFound, "measurement "+id+" not found", err)
		}
		if err := txn.Delete([]byte(measurementKey(id))); err != nil {
			return err
		}
		var session model.TestSession
		if err := badgerkv.GetJSON(txn, sessionKey(m.Session), &session); err == nil {
			if err := txn.Delete([]byte(historyKey(session.User, m.BiomarkerId, m.Id))); err != nil {
				return err
			}
		}

		remaining, err := s.measurementsOfSession(txn, m.Session)
		if err != nil {
			return err
		}
		stillHasOthers := false
		for _, r := range remaining {
			if r.Id != id {
				stillHasOthers = true
				break
			}
		}
		if !stillHasOthers {
			if err := txn.Delete([]byte(sessionKey(m.Session))); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

// GetHistory returns up to limit measurements for (user, biomarker_id),
// most recent first.
func (s *Store) GetHistory(ctx context.Context, user, biomarkerId string, limit int) ([]model.Measurement, error) {
	var all []model.Measurement
	prefix := fmt.Sprintf("history:%s:%s:", user, biomarkerId)
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, prefix, func(_ string, get func(any) error) error {
			var m model.Measurement
			if err := get(&m); err != nil {
				return err
			}
			all = append(all, m)
			return nil
		})
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindExternalStoreError, "get history", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetLatestFor returns the most recent measurement for (user, biomarker_id).
func (s *Store) GetLatestFor(ctx context.Context, user, biomarkerId string) (*model.Measurement, error) {
	history, err := s.GetHistory(ctx, user, biomarkerId, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return &history[0], nil
}

// CheckDuplicate reports whether (user, biomarker_id, value_canonical,
// test_date) falls within dedup tolerance of an already-persisted
// measurement.
func (s *Store) CheckDuplicate(ctx context.Context, user, biomarkerId string, valueCanonical float64, testDate time.Time) (bool, error) {
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		dup, err := s.findDuplicateLocked(txn, user, biomarkerId, valueCanonical, testDate)
		if err != nil {
			return err
		}
		found = dup != nil
		return nil
	})
	return found, err
}

// findDuplicateLocked implements the §4.2 dedup predicate: same (user,
// biomarker_id) measurement, recorded on the same test_date, within
// epsilon fraction of valueCanonical. Must be called from within a
// transaction already holding the relevant keys.
func (s *Store) findDuplicateLocked(txn *badger.Txn, user, biomarkerId string, valueCanonical float64, testDate time.Time) (*model.Measurement, error) {
	prefix := fmt.Sprintf("history:%s:%s:", user, biomarkerId)
	var dup *model.Measurement
	err := badgerkv.ScanPrefix(txn, prefix, func(_ string, get func(any) error) error {
		if dup != nil {
			return nil
		}
		var m model.Measurement
		if err := get(&m); err != nil {
			return err
		}

		var session model.TestSession
		if err := badgerkv.GetJSON(txn, sessionKey(m.Session), &session); err != nil {
			return nil
		}
		if !sameDay(session.TestDate, testDate) {
			return nil
		}
		tolerance := s.epsilon * math.Abs(valueCanonical)
		if tolerance == 0 {
			tolerance = s.epsilon
		}
		if math.Abs(m.ValueCanonical-valueCanonical) < tolerance {
			found := m
			dup = &found
		}
		return nil
	})
	return dup, err
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
