// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package measurements

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/normalize"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.Reload(catalog.CatalogFile{
		Biomarkers: []model.Biomarker{
			{Id: "glucose", CanonicalName: "Glucose", CanonicalUnit: "mmol/L", Category: model.CategoryMetabolic},
		},
		Synonyms: []model.Synonym{
			{BiomarkerId: "glucose", Label: "Glucose"},
		},
	})
	return c
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, testCatalog(t), 0.005, nil)
}

func TestCreateMeasurement_DuplicateWithinEpsilonRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	testDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	session1, err := store.CreateSession(ctx, "user-1", model.SourceManual, testDate, nil)
	require.NoError(t, err)

	_, err = store.CreateMeasurement(ctx, session1.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.NoError(t, err)

	// A second session, same user/biomarker/day, value within 0.5% --
	// must be rejected as DuplicateMeasurement and must not create a
	// second persisted row (§8: "creating the same measurement twice
	// yields exactly one persisted row").
	session2, err := store.CreateSession(ctx, "user-1", model.SourceManual, testDate, nil)
	require.NoError(t, err)

	_, err = store.CreateMeasurement(ctx, session2.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90.1, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindDuplicateMeasurement))

	history, err := store.GetHistory(ctx, "user-1", "glucose", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreateMeasurement_SameBiomarkerTwiceInOneSessionRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	testDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	session, err := store.CreateSession(ctx, "user-1", model.SourceManual, testDate, nil)
	require.NoError(t, err)

	_, err = store.CreateMeasurement(ctx, session.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.NoError(t, err)

	_, err = store.CreateMeasurement(ctx, session.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 95, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindDuplicateMeasurement))
}

func TestCreateMeasurement_DifferentDayNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	session1, err := store.CreateSession(ctx, "user-1", model.SourceManual, day1, nil)
	require.NoError(t, err)
	_, err = store.CreateMeasurement(ctx, session1.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, day1)
	require.NoError(t, err)

	session2, err := store.CreateSession(ctx, "user-1", model.SourceManual, day2, nil)
	require.NoError(t, err)
	_, err = store.CreateMeasurement(ctx, session2.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, day2)
	require.NoError(t, err)

	history, err := store.GetHistory(ctx, "user-1", "glucose", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUpdateMeasurement_AIExtractedBecomesCorrected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	testDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	session, err := store.CreateSession(ctx, "user-1", model.SourceAIExtracted, testDate, nil)
	require.NoError(t, err)
	m, err := store.CreateMeasurement(ctx, session.Id, model.SourceAIExtracted,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.NoError(t, err)
	assert.Equal(t, model.SourceAIExtracted, m.Source)

	updated, err := store.UpdateMeasurement(ctx, m.Id,
		normalize.Input{Name: "Glucose", Value: 92, Unit: "mmol/L"}, model.NormalisationContext{}, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceCorrected, updated.Source)
}

func TestDeleteMeasurement_LastInSessionDeletesSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	testDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	session, err := store.CreateSession(ctx, "user-1", model.SourceManual, testDate, nil)
	require.NoError(t, err)
	m, err := store.CreateMeasurement(ctx, session.Id, model.SourceManual,
		normalize.Input{Name: "Glucose", Value: 90, Unit: "mmol/L"}, model.NormalisationContext{}, testDate)
	require.NoError(t, err)

	require.NoError(t, store.DeleteMeasurement(ctx, m.Id))

	var gone model.TestSession
	err = store.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.GetJSON(txn, sessionKey(session.Id), &gone)
	})
	assert.ErrorIs(t, err, badgerkv.ErrKeyNotFound)
}
