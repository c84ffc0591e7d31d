// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/baseline"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/scoring"
)

func newTestDeps(t *testing.T) *Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	return &Dependencies{
		Samples:                  aggregation.NewSampleStore(kv),
		Baselines:                baseline.NewStore(kv),
		Readiness:                scoring.NewScoreCache[model.ReadinessScore](kv, "readiness"),
		Sleep:                    scoring.NewScoreCache[model.SleepScore](kv, "sleep"),
		Momentum:                 scoring.NewScoreCache[model.MomentumScore](kv, "momentum"),
		Aggregator:               aggregation.NewAggregator(aggregation.NewSampleStore(kv), nil, nil),
		SleepProcessor:           aggregation.NewSleepProcessor(180),
		ReadinessCalibrationDays: 14,
		BaselineWindowDays:       28,
	}
}

// A readiness score cached before a sleep-night record lands must be
// recomputed once the sleep night arrives, even though the daily row
// itself never changed -- the InputsUpdatedAt watermark must track both
// inputs, not just the daily row (spec.md §4.5, §8 scenario 4).
func TestReadinessHandler_RecomputesAfterLateSleepNightArrives(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	localDate := "2026-07-01"

	dayUpdatedAt := time.Date(2026, 7, 1, 5, 0, 0, 0, time.UTC)
	steps := 6000.0
	require.NoError(t, deps.Samples.PutDailyRow(ctx, model.DailyMetricRow{
		User: "user-1", LocalDate: localDate, Timezone: "UTC",
		StepsTotal: &steps,
		CreatedAt:  dayUpdatedAt, UpdatedAt: dayUpdatedAt,
	}))

	router := NewRouter(deps)

	firstResp := httptest.NewRecorder()
	firstReq := httptest.NewRequest(http.MethodGet, "/v1/scores/readiness?user=user-1&date="+localDate, nil)
	router.ServeHTTP(firstResp, firstReq)
	require.Equal(t, http.StatusOK, firstResp.Code)

	var first model.ReadinessScore
	require.NoError(t, json.Unmarshal(firstResp.Body.Bytes(), &first))
	assert.True(t, first.InputsUpdatedAt.Equal(dayUpdatedAt))

	// A sleep night lands after the first score was cached; its
	// UpdatedAt is strictly after dayUpdatedAt. The daily row's own
	// UpdatedAt is untouched by this write.
	nightUpdatedAt := dayUpdatedAt.Add(3 * time.Hour)
	require.NoError(t, deps.Samples.PutSleepNight(ctx, model.SleepNight{
		User: "user-1", SleepDate: localDate, Timezone: "UTC",
		TotalSleepMin: 420, SleepEfficiencyPct: 90,
		CreatedAt: nightUpdatedAt, UpdatedAt: nightUpdatedAt,
	}))

	secondResp := httptest.NewRecorder()
	secondReq := httptest.NewRequest(http.MethodGet, "/v1/scores/readiness?user=user-1&date="+localDate, nil)
	router.ServeHTTP(secondResp, secondReq)
	require.Equal(t, http.StatusOK, secondResp.Code)

	var second model.ReadinessScore
	require.NoError(t, json.Unmarshal(secondResp.Body.Bytes(), &second))
	assert.True(t, second.InputsUpdatedAt.Equal(nightUpdatedAt),
		"recomputed score must stamp InputsUpdatedAt from the newly arrived sleep night, not just the daily row")
	assert.False(t, second.GeneratedAt.Equal(first.GeneratedAt) && second.GeneratedAt.Before(nightUpdatedAt),
		"recompute must not reuse the first cached entry's generation time")
}

func TestReadinessHandler_ServesCachedScoreWhenInputsUnchanged(t *testing.T) {
	deps := newTestDeps(t)
	ctx := context.Background()
	localDate := "2026-07-01"

	dayUpdatedAt := time.Date(2026, 7, 1, 5, 0, 0, 0, time.UTC)
	steps := 6000.0
	require.NoError(t, deps.Samples.PutDailyRow(ctx, model.DailyMetricRow{
		User: "user-1", LocalDate: localDate, Timezone: "UTC",
		StepsTotal: &steps,
		CreatedAt:  dayUpdatedAt, UpdatedAt: dayUpdatedAt,
	}))

	router := NewRouter(deps)

	var first model.ReadinessScore
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, httptest.NewRequest(http.MethodGet, "/v1/scores/readiness?user=user-1&date="+localDate, nil))
	require.NoError(t, json.Unmarshal(firstResp.Body.Bytes(), &first))

	var second model.ReadinessScore
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, httptest.NewRequest(http.MethodGet, "/v1/scores/readiness?user=user-1&date="+localDate, nil))
	require.NoError(t, json.Unmarshal(secondResp.Body.Bytes(), &second))

	assert.True(t, second.GeneratedAt.Equal(first.GeneratedAt), "unchanged inputs must serve the cached entry, not regenerate")
}

func TestSleepSamplesEndpoint_PersistsReachableSleepNight(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	base := time.Date(2026, 7, 1, 22, 0, 0, 0, time.UTC)
	body := `{
		"user": "user-1",
		"sleepDate": "2026-07-01",
		"timezone": "UTC",
		"samples": [
			{"uuid": "1", "stage": "inBed", "start": "` + base.Format(time.RFC3339) + `", "end": "` + base.Add(8*time.Hour).Format(time.RFC3339) + `"},
			{"uuid": "2", "stage": "core", "start": "` + base.Format(time.RFC3339) + `", "end": "` + base.Add(7*time.Hour).Format(time.RFC3339) + `"}
		]
	}`

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sleep-samples", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	night, found, err := deps.Samples.GetSleepNight(context.Background(), "user-1", "2026-07-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Greater(t, night.TotalSleepMin, 0.0)
}
