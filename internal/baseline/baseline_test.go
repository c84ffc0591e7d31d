// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func newTestCalculator(t *testing.T) (*Calculator, *aggregation.SampleStore, *Store) {
	t.Helper()
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	samples := aggregation.NewSampleStore(kv)
	store := NewStore(kv)
	return NewCalculator(samples, store, nil), samples, store
}

func putDailyRow(t *testing.T, samples *aggregation.SampleStore, user, date string, restingHR float64) {
	t.Helper()
	ctx := context.Background()
	hr := restingHR
	require.NoError(t, samples.PutDailyRow(ctx, model.DailyMetricRow{
		User: user, LocalDate: date, Timezone: "UTC",
		RestingHR: &hr,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
}

func TestCalculator_FlagsInsufficientDataBelowMinSamples(t *testing.T) {
	ctx := context.Background()
	calc, samples, store := newTestCalculator(t)
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MinSamplesRequired-1; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		putDailyRow(t, samples, "user-1", date, 55)
	}

	require.NoError(t, calc.Recompute(ctx, "user-1", now))

	b, found, err := store.Get(ctx, "user-1", model.MetricRestingHR, 14)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, b.InsufficientData)
}

func TestCalculator_ComputesMedianAndPercentilesAboveMinSamples(t *testing.T) {
	ctx := context.Background()
	calc, samples, store := newTestCalculator(t)
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	values := []float64{50, 52, 54, 56, 58, 60, 62, 64}
	for i, v := range values {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		putDailyRow(t, samples, "user-1", date, v)
	}

	require.NoError(t, calc.Recompute(ctx, "user-1", now))

	b, found, err := store.Get(ctx, "user-1", model.MetricRestingHR, 14)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, b.InsufficientData)
	assert.Equal(t, len(values), b.SampleCount)
	assert.Greater(t, b.Median, 0.0)
	assert.LessOrEqual(t, b.P25, b.Median)
	assert.LessOrEqual(t, b.Median, b.P75)
}

func TestCalculator_WindowExcludesRowsOlderThanCutoff(t *testing.T) {
	ctx := context.Background()
	calc, samples, store := newTestCalculator(t)
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	// 8 rows inside the 14-day window, plus one far outside every
	// window -- it must never be counted.
	for i := 0; i < 8; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		putDailyRow(t, samples, "user-1", date, 60)
	}
	putDailyRow(t, samples, "user-1", now.AddDate(0, 0, -120).Format("2006-01-02"), 200)

	require.NoError(t, calc.Recompute(ctx, "user-1", now))

	b, found, err := store.Get(ctx, "user-1", model.MetricRestingHR, 14)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 8, b.SampleCount)
}
