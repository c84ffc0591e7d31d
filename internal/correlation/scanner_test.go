// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/model"
)

func TestPatternSignature_DeterministicAcrossCalls(t *testing.T) {
	a := PatternSignature(model.InsightCorrelation, "resting_heart_rate", DirectionUp)
	b := PatternSignature(model.InsightCorrelation, "resting_heart_rate", DirectionUp)
	assert.Equal(t, a, b)
}

func TestPatternSignature_DiffersByDirection(t *testing.T) {
	up := PatternSignature(model.InsightCorrelation, "resting_heart_rate", DirectionUp)
	down := PatternSignature(model.InsightCorrelation, "resting_heart_rate", DirectionDown)
	assert.NotEqual(t, up, down)
}

func restingHR(v float64) model.DailyMetricRow {
	h := v
	return model.DailyMetricRow{RestingHR: &h}
}

func TestScanner_DetectsAlcoholRaisingRestingHR(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rule := Rule{
		EventCategory: "alcohol", TargetBiomarker: "resting_heart_rate",
		WindowHours: 24, ThresholdDelta: 3, Direction: DirectionUp,
		Title: "RHR rises after drinking", BodyTemplate: "%d of %d times, avg +%.1f",
	}
	scanner := New([]Rule{rule}, 0.5)

	days := map[string]model.DailyMetricRow{}
	events := []model.LifeEvent{}
	for i := 0; i < 4; i++ {
		day := base.AddDate(0, 0, i*3)
		before := restingHR(55)
		beforeDate := day.AddDate(0, 0, -1)
		before.LocalDate = beforeDate.Format("2006-01-02")
		after := restingHR(62)
		afterDate := day.AddDate(0, 0, 1)
		after.LocalDate = afterDate.Format("2006-01-02")
		days[before.LocalDate] = before
		days[after.LocalDate] = after
		events = append(events, model.LifeEvent{
			Id: "ev-" + day.Format("2006-01-02"), Category: "alcohol", OccurredAt: day,
		})
	}

	var rows []model.DailyMetricRow
	for _, d := range days {
		rows = append(rows, d)
	}

	candidates := scanner.Scan("user-1", rows, events, base.AddDate(0, 0, 10))
	require.Len(t, candidates, 1)
	assert.Equal(t, 4, candidates[0].Occurrences)
	assert.Equal(t, 4, candidates[0].TotalOpportunities)
	assert.Equal(t, PatternSignature(model.InsightCorrelation, "resting_heart_rate", DirectionUp), candidates[0].Card.PatternSignature)
}

func TestScanner_BelowConfidenceThresholdIsDropped(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rule := Rule{
		EventCategory: "alcohol", TargetBiomarker: "resting_heart_rate",
		WindowHours: 24, ThresholdDelta: 3, Direction: DirectionUp,
		Title: "RHR rises after drinking", BodyTemplate: "%d of %d times, avg +%.1f",
	}
	scanner := New([]Rule{rule}, 0.9)

	days := map[string]model.DailyMetricRow{}
	var events []model.LifeEvent
	// Only 1 of 4 occurrences actually crosses the threshold -- 25%
	// confidence, below the 90% bar, so nothing should be proposed.
	for i := 0; i < 4; i++ {
		day := base.AddDate(0, 0, i*3)
		before := restingHR(55)
		beforeDate := day.AddDate(0, 0, -1)
		before.LocalDate = beforeDate.Format("2006-01-02")
		delta := 1.0
		if i == 0 {
			delta = 8.0
		}
		after := restingHR(55 + delta)
		afterDate := day.AddDate(0, 0, 1)
		after.LocalDate = afterDate.Format("2006-01-02")
		days[before.LocalDate] = before
		days[after.LocalDate] = after
		events = append(events, model.LifeEvent{
			Id: "ev-" + day.Format("2006-01-02"), Category: "alcohol", OccurredAt: day,
		})
	}
	var rows []model.DailyMetricRow
	for _, d := range days {
		rows = append(rows, d)
	}

	candidates := scanner.Scan("user-1", rows, events, base.AddDate(0, 0, 10))
	assert.Empty(t, candidates)
}
