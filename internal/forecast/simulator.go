// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forecast

import "github.com/flomentum/vitalscore/internal/model"

// KcalPerKgBodyMass is the standard energy-density approximation used to
// translate a daily kcal delta into a daily weight-trend slope delta.
const KcalPerKgBodyMass = 7700.0

// Lever is one what-if scenario the simulator can apply. Levers are
// plain data passed to Simulate (rather than a hardcoded switch); the
// worker uses CycleInputs.Levers when set and DefaultLevers otherwise.
// No config option supplies levers.
type Lever struct {
	Id              string
	Label           string
	DeltaKcalPerDay float64
}

// DefaultLevers is the stock catalog shipped when no user-specific
// override is configured.
var DefaultLevers = []Lever{
	{Id: "steps_2000", Label: "+2,000 steps/day", DeltaKcalPerDay: -100},
	{Id: "steps_5000", Label: "+5,000 steps/day", DeltaKcalPerDay: -250},
	{Id: "protein_30g", Label: "+30g protein/day", DeltaKcalPerDay: -60},
	{Id: "cut_200kcal", Label: "-200 kcal/day intake", DeltaKcalPerDay: -200},
	{Id: "strength_2x", Label: "2x strength sessions/week", DeltaKcalPerDay: -80},
}

// Simulate computes §4.7.k: for each lever, recomputes the horizon with
// slope adjusted by the lever's daily energy delta, and the resulting
// ETA to target under that adjusted slope.
func Simulate(levers []Lever, start, baseSlope, target, baseSigma float64, confidence model.ConfidenceLevel, horizonDays int, goal model.GoalType) []model.SimulatorLeverResult {
	out := make([]model.SimulatorLeverResult, 0, len(levers))
	for _, lever := range levers {
		adjustedSlope := baseSlope + lever.DeltaKcalPerDay/KcalPerKgBodyMass
		series := ProjectSeries(start, adjustedSlope, baseSigma, confidence, horizonDays)
		eta := ETADays(start, target, adjustedSlope, goal)
		out = append(out, model.SimulatorLeverResult{
			LeverId:         lever.Id,
			LeverLabel:      lever.Label,
			DeltaKcalPerDay: lever.DeltaKcalPerDay,
			Series:          series,
			NewETADays:      eta,
		})
	}
	return out
}
