// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/logging"
)

// RecomputeTrigger is queued whenever a day's aggregates change, so the
// Forecast Engine (and baseline/scoring recompute) knows to look again.
type RecomputeTrigger func(ctx context.Context, user, localDate string)

// Aggregator reduces raw wearable samples into DailyMetricRow per
// (user, local_date). It is side-effect-free beyond its SampleStore: the
// same batch sent twice produces the same row because every sample is
// keyed by its client-assigned uuid.
type Aggregator struct {
	store   *SampleStore
	trigger RecomputeTrigger
	logger  *logging.Logger
}

// NewAggregator constructs an Aggregator. trigger may be nil if the
// caller doesn't need a recompute signal (e.g. in tests).
func NewAggregator(store *SampleStore, trigger RecomputeTrigger, logger *logging.Logger) *Aggregator {
	return &Aggregator{store: store, trigger: trigger, logger: logger}
}

// IngestSamples buckets samples by the local date of their Start time in
// the given timezone, persists them, and recomputes the DailyMetricRow
// for every local date touched. Returns the set of touched local dates.
func (a *Aggregator) IngestSamples(ctx context.Context, user, timezone string, samples []model.RawSample) ([]string, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidationError, "invalid timezone "+timezone, err)
	}

	byDate := map[string][]model.RawSample{}
	for _, s := range samples {
		date := s.Start.In(loc).Format("2006-01-02")
		byDate[date] = append(byDate[date], s)
	}

	var touched []string
	for date, group := range byDate {
		if err := a.store.PutSamples(ctx, user, date, group); err != nil {
			return nil, fmt.Errorf("store raw samples for %s: %w", date, err)
		}
		if err := a.recompute(ctx, user, date, timezone, loc); err != nil {
			return nil, err
		}
		touched = append(touched, date)
		if a.trigger != nil {
			a.trigger(ctx, user, date)
		}
	}
	return touched, nil
}

// recompute rebuilds the DailyMetricRow for (user, localDate) from every
// stored raw sample for that day, so a replayed batch is a no-op rather
// than a double-count.
func (a *Aggregator) recompute(ctx context.Context, user, localDate, timezone string, loc *time.Location) error {
	all, err := a.store.SamplesForDay(ctx, user, localDate)
	if err != nil {
		return fmt.Errorf("load samples for %s: %w", localDate, err)
	}

	dayStart, err := time.ParseInLocation("2006-01-02", localDate, loc)
	if err != nil {
		return err
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	existing, found, err := a.store.GetDailyRow(ctx, user, localDate)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row := model.DailyMetricRow{
		User:        user,
		LocalDate:   localDate,
		Timezone:    timezone,
		UTCDayStart: dayStart.UTC(),
		UTCDayEnd:   dayEnd.UTC(),
		UpdatedAt:   now,
	}
	if found {
		row.CreatedAt = existing.CreatedAt
	} else {
		row.CreatedAt = now
	}

	type coverage struct {
		total float64
		dur   time.Duration
	}
	stepsBySource := map[string]*coverage{}

	var (
		activeEnergy, exerciseMin, standHours                           float64
		haveActiveEnergy, haveExerciseMin, haveStandHours               bool
		hrSum, hrvSum, respSum, o2Sum                                   float64
		hrWeight, hrvWeight, respWeight, o2Weight                       time.Duration
		latestWeight, latestBodyFat, latestRestingHR                    *sampleAt
	)

	for _, s := range all {
		weight := sampleDuration(s)
		switch s.Type {
		case model.SampleSteps:
			c, ok := stepsBySource[s.Source]
			if !ok {
				c = &coverage{}
				stepsBySource[s.Source] = c
			}
			c.total += s.Value
			c.dur += weight
		case model.SampleActiveEnergy:
			activeEnergy += s.Value
			haveActiveEnergy = true
		case model.SampleExerciseMinutes:
			exerciseMin += s.Value
			haveExerciseMin = true
		case model.SampleStandHours:
			standHours += s.Value
			haveStandHours = true
		case model.SampleHeartRate:
			hrSum += s.Value * float64(weight)
			hrWeight += weight
		case model.SampleHRV:
			hrvSum += s.Value * float64(weight)
			hrvWeight += weight
		case model.SampleRespiratoryRate:
			respSum += s.Value * float64(weight)
			respWeight += weight
		case model.SampleOxygenSaturation:
			o2Sum += s.Value * float64(weight)
			o2Weight += weight
		case model.SampleRestingHR:
			latestRestingHR = latestOf(latestRestingHR, s)
		case model.SampleWeight:
			latestWeight = latestOf(latestWeight, s)
		case model.SampleBodyFatPct:
			latestBodyFat = latestOf(latestBodyFat, s)
		}
	}

	if len(stepsBySource) > 0 {
		sources := map[string]float64{}
		var bestSource string
		var bestCoverage time.Duration
		for src, c := range stepsBySource {
			sources[src] = c.total
			if c.dur > bestCoverage {
				bestCoverage = c.dur
				bestSource = src
			}
		}
		total := sources[bestSource]
		row.StepsTotal = &total
		row.StepsSources = sources
	}
	if haveActiveEnergy {
		row.ActiveEnergyKcal = &activeEnergy
	}
	if haveExerciseMin {
		row.ExerciseMinutes = &exerciseMin
	}
	if haveStandHours {
		row.StandHours = &standHours
	}
	if hrWeight > 0 {
		v := hrSum / float64(hrWeight)
		row.RestingHR = &v
	}
	if latestRestingHR != nil {
		row.RestingHR = &latestRestingHR.value
	}
	if hrvWeight > 0 {
		v := hrvSum / float64(hrvWeight)
		row.HRVMs = &v
	}
	if respWeight > 0 {
		v := respSum / float64(respWeight)
		row.RespiratoryRate = &v
	}
	if o2Weight > 0 {
		v := o2Sum / float64(o2Weight)
		row.OxygenSaturationPct = &v
	}
	if latestWeight != nil {
		row.WeightKg = &latestWeight.value
	}
	if latestBodyFat != nil {
		row.BodyFatPct = &latestBodyFat.value
	}
	if row.WeightKg != nil && row.BodyFatPct != nil {
		// BMI requires height, which this aggregator doesn't carry; left
		// nil here and populated by the profile-aware caller if available.
		_ = row.BMI
	}

	return a.store.PutDailyRow(ctx, row)
}

type sampleAt struct {
	value float64
	at    time.Time
}

func latestOf(cur *sampleAt, s model.RawSample) *sampleAt {
	if cur == nil || s.Start.After(cur.at) {
		return &sampleAt{value: s.Value, at: s.Start}
	}
	return cur
}

func sampleDuration(s model.RawSample) time.Duration {
	d := s.End.Sub(s.Start)
	if d <= 0 {
		return time.Second
	}
	return d
}
