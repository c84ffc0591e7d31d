// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"time"

	"github.com/flomentum/vitalscore/internal/model"
)

// MomentumInputs bundles today's daily metrics with the targets and
// baselines the factor sub-scores are measured against.
type MomentumInputs struct {
	Today        model.DailyMetricRow
	Baselines    map[model.BaselineMetric]model.PersonalBaseline
	SleepHours   float64
	StepsTarget  float64
}

type momentumFactorDef struct {
	name   string
	weight float64
	score  func(MomentumInputs) (float64, bool)
}

var momentumFactors = []momentumFactorDef{
	{"sleep_duration", 0.20, func(in MomentumInputs) (float64, bool) {
		return clamp(100-absFloat(in.SleepHours-8)*15, 0, 100), true
	}},
	{"hrv_deviation", 0.15, func(in MomentumInputs) (float64, bool) {
		if in.Today.HRVMs == nil {
			return 0, false
		}
		b, ok := in.Baselines[model.MetricHRV]
		if !ok || b.InsufficientData {
			return 0, false
		}
		return deviationScore(*in.Today.HRVMs, b, true), true
	}},
	{"rhr_deviation", 0.15, func(in MomentumInputs) (float64, bool) {
		if in.Today.RestingHR == nil {
			return 0, false
		}
		b, ok := in.Baselines[model.MetricRestingHR]
		if !ok || b.InsufficientData {
			return 0, false
		}
		return deviationScore(*in.Today.RestingHR, b, false), true
	}},
	{"steps_vs_target", 0.15, func(in MomentumInputs) (float64, bool) {
		if in.Today.StepsTotal == nil || in.StepsTarget <= 0 {
			return 0, false
		}
		return clamp(*in.Today.StepsTotal/in.StepsTarget*100, 0, 100), true
	}},
	{"exercise_minutes", 0.10, func(in MomentumInputs) (float64, bool) {
		if in.Today.ExerciseMinutes == nil {
			return 0, false
		}
		return clamp(*in.Today.ExerciseMinutes/30*100, 0, 100), true
	}},
	{"respiratory_stability", 0.10, func(in MomentumInputs) (float64, bool) {
		if in.Today.RespiratoryRate == nil {
			return 0, false
		}
		b, ok := in.Baselines[model.MetricRespiratoryRate]
		if !ok || b.InsufficientData {
			return 0, false
		}
		return clamp(100-absFloat(*in.Today.RespiratoryRate-b.Median)*10, 0, 100), true
	}},
	{"oxygen_saturation", 0.10, func(in MomentumInputs) (float64, bool) {
		if in.Today.OxygenSaturationPct == nil {
			return 0, false
		}
		return clamp((*in.Today.OxygenSaturationPct-90)*10, 0, 100), true
	}},
	{"stand_hours", 0.05, func(in MomentumInputs) (float64, bool) {
		if in.Today.StandHours == nil {
			return 0, false
		}
		return clamp(*in.Today.StandHours/12*100, 0, 100), true
	}},
}

// Momentum computes the §4.5 Momentum score from up to 8 explainable
// factors. Factors with no underlying data are skipped and the
// remaining weights renormalised.
func Momentum(in MomentumInputs, now time.Time) model.MomentumScore {
	var (
		weightedSum, weightTotal float64
		factors                  []model.MomentumFactor
	)
	for _, def := range momentumFactors {
		value, present := def.score(in)
		if !present {
			continue
		}
		weightedSum += value * def.weight
		weightTotal += def.weight
		factors = append(factors, model.MomentumFactor{Name: def.name, Value: value, Weight: def.weight})
	}

	score := 50.0
	if weightTotal > 0 {
		score = weightedSum / weightTotal
	}

	return model.MomentumScore{
		User:            in.Today.User,
		LocalDate:       in.Today.LocalDate,
		Score:           clamp(score, 0, 100),
		Zone:            momentumZone(score),
		Factors:         factors,
		DailyFocus:      dailyFocus(factors),
		GeneratedAt:     now,
		InputsUpdatedAt: in.Today.UpdatedAt,
	}
}

func momentumZone(score float64) model.MomentumZone {
	switch {
	case score >= 75:
		return model.MomentumGreen
	case score >= 50:
		return model.MomentumYellow
	default:
		return model.MomentumRed
	}
}

// dailyFocus picks the single lowest-scoring factor as the one-sentence
// coaching nudge; ties resolve to the first factor encountered.
func dailyFocus(factors []model.MomentumFactor) string {
	if len(factors) == 0 {
		return "Not enough data yet to suggest a focus for today."
	}
	worst := factors[0]
	for _, f := range factors[1:] {
		if f.Value < worst.Value {
			worst = f
		}
	}
	switch worst.Name {
	case "sleep_duration":
		return "Aim for closer to 8 hours of sleep tonight."
	case "hrv_deviation":
		return "Your HRV is running below baseline; consider an easier day."
	case "rhr_deviation":
		return "Resting heart rate is elevated; prioritize recovery today."
	case "steps_vs_target":
		return "You're behind on steps today; a short walk would help."
	case "exercise_minutes":
		return "No structured exercise logged yet today."
	case "respiratory_stability":
		return "Respiratory rate is off your baseline; keep an eye on it."
	case "oxygen_saturation":
		return "Oxygen saturation is lower than usual today."
	case "stand_hours":
		return "Try to stand and move more throughout the day."
	default:
		return "Keep up today's momentum."
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
