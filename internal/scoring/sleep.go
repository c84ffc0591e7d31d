// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"math"
	"time"

	"github.com/flomentum/vitalscore/internal/model"
)

const targetSleepMinutes = 480 // 8h, adjustable per user profile later

// ageBandedStructureTarget returns the expected deep%+rem% share for a
// given age band; deep and REM both decline steadily across adulthood.
func ageBandedStructureTarget(ageYears int) float64 {
	switch {
	case ageYears < 30:
		return 45
	case ageYears < 50:
		return 40
	case ageYears < 65:
		return 35
	default:
		return 30
	}
}

// SleepInputs bundles the night under evaluation with the surrounding
// context needed for the consistency and recovery sub-scores.
type SleepInputs struct {
	Night           model.SleepNight
	AgeYears        int
	RecentBedtimes  []time.Time // trailing up to 7 nights, most recent last
	Baselines       map[model.BaselineMetric]model.PersonalBaseline
	TodayHRV        *float64
	TodayRestingHR  *float64
}

// Sleep computes the §4.5 Sleep score from a derived SleepNight.
func Sleep(in SleepInputs, now time.Time) model.SleepScore {
	n := in.Night
	duration := durationScore(n.TotalSleepMin)
	efficiency := efficiencyScore(n.SleepEfficiencyPct)
	structure := structureScore(n, in.AgeYears)
	consistency := consistencyScore(in.RecentBedtimes)
	recovery := sleepRecoveryScore(in)

	score := (duration + efficiency + structure + consistency + recovery) / 5

	return model.SleepScore{
		User:             n.User,
		LocalDate:        n.SleepDate,
		Score:            clamp(score, 0, 100),
		Band:             sleepBand(score),
		DurationScore:    duration,
		EfficiencyScore:  efficiency,
		StructureScore:   structure,
		ConsistencyScore: consistency,
		RecoveryScore:    recovery,
		GeneratedAt:      now,
		InputsUpdatedAt:  n.UpdatedAt,
	}
}

func sleepBand(score float64) model.SleepScoreBand {
	switch {
	case score >= 85:
		return model.SleepExcellent
	case score >= 70:
		return model.SleepGood
	case score >= 55:
		return model.SleepFair
	default:
		return model.SleepPoor
	}
}

func durationScore(totalMin float64) float64 {
	deficit := math.Abs(totalMin - targetSleepMinutes)
	return clamp(100-deficit/3, 0, 100)
}

func efficiencyScore(pct float64) float64 {
	return clamp(pct, 0, 100)
}

func structureScore(n model.SleepNight, ageYears int) float64 {
	if n.TotalSleepMin <= 0 {
		return 0
	}
	actual := (n.DeepMin + n.REMMin) / n.TotalSleepMin * 100
	target := ageBandedStructureTarget(ageYears)
	return clamp(100-math.Abs(actual-target)*2, 0, 100)
}

// consistencyScore penalizes bedtime variance across the trailing window;
// a standard deviation of zero minutes scores perfectly, one of 90+
// minutes scores near zero.
func consistencyScore(bedtimes []time.Time) float64 {
	if len(bedtimes) < 2 {
		return 70
	}
	minutesOfDay := make([]float64, len(bedtimes))
	var sum float64
	for i, t := range bedtimes {
		m := float64(t.Hour()*60 + t.Minute())
		minutesOfDay[i] = m
		sum += m
	}
	mean := sum / float64(len(minutesOfDay))
	var variance float64
	for _, m := range minutesOfDay {
		variance += (m - mean) * (m - mean)
	}
	variance /= float64(len(minutesOfDay))
	stddev := math.Sqrt(variance)
	return clamp(100-stddev, 0, 100)
}

func sleepRecoveryScore(in SleepInputs) float64 {
	hrvPart := 50.0
	if in.TodayHRV != nil {
		if b, ok := in.Baselines[model.MetricHRV]; ok && !b.InsufficientData {
			hrvPart = deviationScore(*in.TodayHRV, b, true)
		}
	}
	rhrPart := 50.0
	if in.TodayRestingHR != nil {
		if b, ok := in.Baselines[model.MetricRestingHR]; ok && !b.InsufficientData {
			rhrPart = deviationScore(*in.TodayRestingHR, b, false)
		}
	}
	return clamp((hrvPart+rhrPart)/2, 0, 100)
}
