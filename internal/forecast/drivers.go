// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forecast

import (
	"sort"

	"github.com/flomentum/vitalscore/internal/model"
)

// DriverContext bundles the recent daily-feature-row signals the
// heuristic driver rules key off of.
type DriverContext struct {
	TrendSlopeKgPerDay float64
	AvgStepsLast7d     float64
	StepsTarget        float64
	AvgExerciseMinLast7d float64
	HasStrengthSessionsLast7d bool
	CGMLateSpikeCount  int
	AvgProteinGLast7d  float64
	ProteinTargetG     float64
}

type driverRule struct {
	def   func(DriverContext) *model.ForecastDriver
}

var driverRules = []driverRule{
	{func(c DriverContext) *model.ForecastDriver {
		if c.StepsTarget <= 0 || c.AvgStepsLast7d >= c.StepsTarget {
			return nil
		}
		return &model.ForecastDriver{
			Id: "steps_gap", Title: "Close your daily steps gap",
			Subtitle: "You're averaging below your step target this week.",
			Confidence: 0.7, Deeplink: "vitalscore://drivers/steps",
		}
	}},
	{func(c DriverContext) *model.ForecastDriver {
		if c.ProteinTargetG <= 0 || c.AvgProteinGLast7d >= c.ProteinTargetG {
			return nil
		}
		return &model.ForecastDriver{
			Id: "protein_gap", Title: "Increase daily protein",
			Subtitle: "Protein intake is trailing your target this week.",
			Confidence: 0.65, Deeplink: "vitalscore://drivers/nutrition",
		}
	}},
	{func(c DriverContext) *model.ForecastDriver {
		if c.HasStrengthSessionsLast7d {
			return nil
		}
		return &model.ForecastDriver{
			Id: "add_strength", Title: "Add a strength session",
			Subtitle: "No strength training logged in the last 7 days.",
			Confidence: 0.6, Deeplink: "vitalscore://drivers/strength",
		}
	}},
	{func(c DriverContext) *model.ForecastDriver {
		if c.CGMLateSpikeCount == 0 {
			return nil
		}
		return &model.ForecastDriver{
			Id: "late_spikes", Title: "Watch late-day glucose spikes",
			Subtitle: "Evening glucose spikes were detected this week.",
			Confidence: 0.55, Deeplink: "vitalscore://drivers/glucose",
		}
	}},
	{func(c DriverContext) *model.ForecastDriver {
		if c.AvgExerciseMinLast7d >= 150.0/7 {
			return nil
		}
		return &model.ForecastDriver{
			Id: "exercise_minutes", Title: "Add more active minutes",
			Subtitle: "Weekly exercise minutes are below the general guideline.",
			Confidence: 0.5, Deeplink: "vitalscore://drivers/exercise",
		}
	}},
	{func(c DriverContext) *model.ForecastDriver {
		if c.TrendSlopeKgPerDay <= 0 {
			return nil
		}
		return &model.ForecastDriver{
			Id: "trend_plateau", Title: "Trend is moving the wrong way",
			Subtitle: "Your weight trend has turned upward this week.",
			Confidence: 0.45, Deeplink: "vitalscore://drivers/trend",
		}
	}},
}

// Drivers generates the §4.7.j top-5 ranked, personalised actions.
func Drivers(ctx DriverContext) []model.ForecastDriver {
	var candidates []model.ForecastDriver
	for _, rule := range driverRules {
		if d := rule.def(ctx); d != nil {
			candidates = append(candidates, *d)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}
