// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forecast

import (
	"math"
	"time"

	"github.com/flomentum/vitalscore/internal/model"
)

// WeighIn is one trailing weight observation used to derive confidence
// and the current-metrics snapshot.
type WeighIn struct {
	Date  time.Time
	WeightKg float64
}

// Confidence computes the §4.7.e confidence level from weigh-in
// frequency and data staleness.
func Confidence(weighInsLast7Days int, stalenessDays float64) model.ConfidenceLevel {
	switch {
	case weighInsLast7Days >= 5 && stalenessDays <= 3:
		return model.ConfidenceHigh
	case weighInsLast7Days < 2 || stalenessDays > 7:
		return model.ConfidenceLow
	default:
		return model.ConfidenceMedium
	}
}

// TrendSlope averages the per-day slopes between consecutive weigh-ins
// among the last 8 (up to 7 intervals). It returns 0 when fewer than 2
// weigh-ins are given or no pair is a positive number of days apart.
// weighIns must be sorted ascending by date.
func TrendSlope(weighIns []WeighIn) float64 {
	if len(weighIns) < 2 {
		return 0
	}
	window := weighIns
	if n := len(window); n > 8 {
		window = window[n-8:]
	}
	var slopes []float64
	for i := 1; i < len(window); i++ {
		days := window[i].Date.Sub(window[i-1].Date).Hours() / 24
		if days <= 0 {
			continue
		}
		slopes = append(slopes, (window[i].WeightKg-window[i-1].WeightKg)/days)
	}
	if len(slopes) == 0 {
		return 0
	}
	var sum float64
	for _, s := range slopes {
		sum += s
	}
	return sum / float64(len(slopes))
}

// ProjectSeries builds the §4.7.g horizon series.
func ProjectSeries(start float64, slope float64, baseSigma float64, confidence model.ConfidenceLevel, horizonDays int) []model.ForecastPoint {
	mult := confidence.BandMultiplier()
	series := make([]model.ForecastPoint, 0, horizonDays)
	for d := 1; d <= horizonDays; d++ {
		mid := start + slope*float64(d)
		uncertainty := baseSigma * mult * math.Sqrt(float64(d)/7)
		series = append(series, model.ForecastPoint{
			DayOffset: d,
			Mid:       mid,
			Low:       mid - uncertainty,
			High:      mid + uncertainty,
		})
	}
	return series
}

// ETADays computes §4.7.h: days until the goal's target weight is
// reached at the current slope, bounded to (0, 365] and nil if the
// slope doesn't move toward the goal.
func ETADays(current, target, slope float64, goal model.GoalType) *float64 {
	if slope == 0 {
		return nil
	}
	days := (target - current) / slope
	if days <= 0 || days > 365 {
		return nil
	}
	switch goal {
	case model.GoalLose:
		if slope >= 0 {
			return nil
		}
	case model.GoalGain:
		if slope <= 0 {
			return nil
		}
	}
	return &days
}

// StatusChip computes §4.7.i.
func StatusChip(hasRecentWeight, hasGoal bool, eta *float64, targetDate *time.Time, now time.Time, slope float64, goal model.GoalType) model.StatusChip {
	if !hasRecentWeight || !hasGoal {
		return model.StatusNeedsData
	}
	contradicts := (goal == model.GoalLose && slope > 0) || (goal == model.GoalGain && slope < 0)
	if contradicts {
		return model.StatusAtRisk
	}
	if eta != nil && targetDate != nil {
		projected := now.AddDate(0, 0, int(*eta))
		if projected.After(targetDate.AddDate(0, 0, 14)) {
			return model.StatusAtRisk
		}
	}
	return model.StatusOnTrack
}
