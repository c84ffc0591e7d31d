// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import "time"

// RecomputeReason labels why a forecast recompute event was queued.
type RecomputeReason string

const (
	ReasonNewWeighIn   RecomputeReason = "new_weigh_in"
	ReasonGoalChanged  RecomputeReason = "goal_changed"
	ReasonNightlyRefresh RecomputeReason = "nightly_refresh"
	ReasonManualRequest RecomputeReason = "manual_request"
)

// RecomputeEvent is one entry in the forecast recompute queue. The queue
// is a per-user coalescing buffer, not a general task
// queue: within one drain cycle only the highest-priority event per user
// survives deduplication.
type RecomputeEvent struct {
	EventId           string
	User              string
	Reason            RecomputeReason
	Priority          int
	QueuedAt          time.Time
	RequestedLocalDate *string
}

// GoalType is the direction of a user's weight goal.
type GoalType string

const (
	GoalLose     GoalType = "LOSE"
	GoalGain     GoalType = "GAIN"
	GoalMaintain GoalType = "MAINTAIN"
)

// WeightGoal is the user's target, as configured outside the core pipeline.
type WeightGoal struct {
	Type           GoalType
	TargetWeightKg float64
	TargetDate     *time.Time
	StartWeightKg  float64
}

// ConfidenceLevel is the forecast's data-sufficiency grade.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// BandMultiplier returns the uncertainty-band multiplier for a confidence
// level: the lower the confidence, the wider the forecast's error band.
func (c ConfidenceLevel) BandMultiplier() float64 {
	switch c {
	case ConfidenceLow:
		return 1.8
	case ConfidenceHigh:
		return 0.9
	default:
		return 1.2
	}
}

// StatusChip is the forecast's at-a-glance status.
type StatusChip string

const (
	StatusNeedsData StatusChip = "NEEDS_DATA"
	StatusAtRisk    StatusChip = "AT_RISK"
	StatusOnTrack   StatusChip = "ON_TRACK"
)

// ModelState is the forecast worker's single-writer per-user model state.
type ModelState struct {
	User                            string
	KUserResponse                   float64
	EnergyBalanceEffectiveKcalPerDay float64
	WaterNoiseSigma                 float64
	BaselineWeightTrendSlope        float64
	LastTrainedLocalDate            string
}

// ForecastPoint is one day of the projected weight series.
type ForecastPoint struct {
	DayOffset int
	Mid       float64
	Low       float64
	High      float64
}

// ForecastDriver is one personalised, ranked action.
type ForecastDriver struct {
	Rank       int
	Id         string
	Title      string
	Subtitle   string
	Confidence float64
	Deeplink   string
}

// SimulatorLeverResult is one scenario's recomputed horizon.
type SimulatorLeverResult struct {
	LeverId    string
	LeverLabel string
	DeltaKcalPerDay float64
	Series     []ForecastPoint
	NewETADays *float64
}

// ForecastSummary is the top-level snapshot returned by /weight/forecast.
type ForecastSummary struct {
	User             string
	GeneratedAt      time.Time
	CurrentWeightKg  float64
	DeltaVs7dAvgKg   float64
	ProgressPct      float64
	Confidence       ConfidenceLevel
	TrendSlopeKgPerDay float64
	ETADays          *float64
	StatusChip       StatusChip
	Series           []ForecastPoint
	Drivers          []ForecastDriver
	SimulatorResults []SimulatorLeverResult
}
