// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring implements the Readiness, Sleep, and Momentum engines
// (§4.5) as pure functions of today's daily metrics, personal baselines,
// and user config, plus the freshness-invariant cache wrapper that sits
// in front of all three.
package scoring

import (
	"time"

	"github.com/flomentum/vitalscore/internal/model"
)

const (
	readinessWeightSleep    = 0.35
	readinessWeightRecovery = 0.30
	readinessWeightLoad     = 0.20
	readinessWeightTrend    = 0.15
)

// ReadinessInputs bundles what the Readiness engine needs beyond the raw
// daily row: the already-computed Sleep sub-score (to avoid re-deriving
// sleep structure here) and the user's rolling baselines.
type ReadinessInputs struct {
	Today      model.DailyMetricRow
	SleepScore float64
	Baselines  map[model.BaselineMetric]model.PersonalBaseline
	// TrendDelta is the day-over-day change in resting HR (bpm); negative
	// is improving. Zero if unavailable.
	TrendDelta float64
}

// Readiness computes the §4.5 Readiness score. now is the generation
// timestamp recorded on the result, not used for any calculation.
func Readiness(in ReadinessInputs, calibrationDays int, now time.Time) model.ReadinessScore {
	recovery := recoveryScore(in.Today, in.Baselines)
	load := loadScore(in.Today, in.Baselines)
	trend := trendScore(in.TrendDelta)

	score := in.SleepScore*readinessWeightSleep +
		recovery*readinessWeightRecovery +
		load*readinessWeightLoad +
		trend*readinessWeightTrend

	calibrating := false
	for _, metric := range []model.BaselineMetric{model.MetricRestingHR, model.MetricHRV} {
		if b, ok := in.Baselines[metric]; !ok || b.InsufficientData || b.WindowDays < calibrationDays {
			calibrating = true
		}
	}

	return model.ReadinessScore{
		User:            in.Today.User,
		LocalDate:       in.Today.LocalDate,
		Score:           clamp(score, 0, 100),
		Band:            readinessBand(score),
		SleepScore:      in.SleepScore,
		RecoveryScore:   recovery,
		LoadScore:       load,
		TrendScore:      trend,
		IsCalibrating:   calibrating,
		GeneratedAt:     now,
		InputsUpdatedAt: in.Today.UpdatedAt,
	}
}

func readinessBand(score float64) model.ReadinessBand {
	switch {
	case score < 40:
		return model.ReadinessLow
	case score <= 70:
		return model.ReadinessModerate
	default:
		return model.ReadinessHigh
	}
}

// recoveryScore rewards HRV at or above baseline and resting HR at or
// below baseline; deviations are scaled against each metric's own p25-p75
// spread so "one band's worth of deviation" costs the same everywhere.
func recoveryScore(today model.DailyMetricRow, baselines map[model.BaselineMetric]model.PersonalBaseline) float64 {
	hrvPart := 50.0
	if today.HRVMs != nil {
		if b, ok := baselines[model.MetricHRV]; ok && !b.InsufficientData {
			hrvPart = deviationScore(*today.HRVMs, b, true)
		}
	}
	rhrPart := 50.0
	if today.RestingHR != nil {
		if b, ok := baselines[model.MetricRestingHR]; ok && !b.InsufficientData {
			rhrPart = deviationScore(*today.RestingHR, b, false)
		}
	}
	return clamp((hrvPart+rhrPart)/2, 0, 100)
}

// loadScore treats exercise minutes far above the personal baseline as
// accumulated fatigue risk (score drops) while near-baseline or rest
// days score highest.
func loadScore(today model.DailyMetricRow, baselines map[model.BaselineMetric]model.PersonalBaseline) float64 {
	if today.ExerciseMinutes == nil {
		return 70
	}
	b, ok := baselines[model.MetricSteps]
	if !ok || b.InsufficientData || b.Median == 0 {
		return 70
	}
	ratio := *today.ExerciseMinutes / (b.Median / 100)
	switch {
	case ratio > 2.5:
		return 35
	case ratio > 1.5:
		return 60
	default:
		return 90
	}
}

func trendScore(delta float64) float64 {
	// Improving (negative RHR delta) scores above neutral; worsening below.
	return clamp(75-delta*5, 0, 100)
}

// deviationScore maps value's distance from the baseline median, in units
// of the IQR half-width, onto a 0-100 score. higherIsBetter controls the
// sign of the mapping (HRV: higher is better; RHR: lower is better).
func deviationScore(value float64, b model.PersonalBaseline, higherIsBetter bool) float64 {
	spread := (b.P75 - b.P25) / 2
	if spread <= 0 {
		spread = 1
	}
	delta := (value - b.Median) / spread
	if !higherIsBetter {
		delta = -delta
	}
	return clamp(70+delta*20, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
