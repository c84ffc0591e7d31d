// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregation

import (
	"sort"
	"time"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
)

// SleepProcessor derives a SleepNight from raw interval samples (§4.4).
type SleepProcessor struct {
	// MinTotalSleepMinutes is SLEEP_MIN_TOTAL_MINUTES; nights under this
	// are rejected as insufficient rather than persisted half-formed.
	MinTotalSleepMinutes float64
}

// NewSleepProcessor constructs a SleepProcessor with the configured
// minimum total sleep threshold.
func NewSleepProcessor(minTotalSleepMinutes float64) *SleepProcessor {
	return &SleepProcessor{MinTotalSleepMinutes: minTotalSleepMinutes}
}

type interval struct {
	start, end time.Time
}

// mergeIntervals sorts and unions overlapping/adjacent intervals so
// double-reported samples from multiple sources aren't double-counted.
func mergeIntervals(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })
	merged := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if !iv.start.After(last.end) {
			if iv.end.After(last.end) {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func totalDuration(ivs []interval) time.Duration {
	var total time.Duration
	for _, iv := range ivs {
		total += iv.end.Sub(iv.start)
	}
	return total
}

// Process merges overlapping interval samples and derives a SleepNight.
// Returns apierr.KindInsufficientData if the merged asleep time falls
// below MinTotalSleepMinutes.
func (p *SleepProcessor) Process(user, sleepDate, timezone string, samples []model.SleepIntervalSample) (model.SleepNight, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return model.SleepNight{}, apierr.Wrap(apierr.KindValidationError, "invalid timezone "+timezone, err)
	}

	byStage := map[model.SleepStage][]interval{}
	for _, s := range samples {
		byStage[s.Stage] = append(byStage[s.Stage], interval{start: s.Start, end: s.End})
	}
	for stage := range byStage {
		byStage[stage] = mergeIntervals(byStage[stage])
	}

	inBed := byStage[model.StageInBed]
	if len(inBed) == 0 {
		return model.SleepNight{}, apierr.New(apierr.KindInsufficientData, "no inBed intervals supplied")
	}

	var asleepAll []interval
	for _, stage := range []model.SleepStage{model.StageAsleep, model.StageCore, model.StageDeep, model.StageREM, model.StageUnspecified} {
		asleepAll = append(asleepAll, byStage[stage]...)
	}
	asleepMerged := mergeIntervals(asleepAll)
	totalSleep := totalDuration(asleepMerged)

	if totalSleep.Minutes() < p.MinTotalSleepMinutes {
		return model.SleepNight{}, apierr.New(apierr.KindInsufficientData, "total sleep below minimum threshold").
			WithDetail(apierr.MissingData{Fields: []string{"total_sleep_min"}, Reason: "fewer than the configured minimum minutes asleep"})
	}

	nightStart := inBed[0].start
	finalWake := inBed[len(inBed)-1].end
	for _, iv := range inBed {
		if iv.start.Before(nightStart) {
			nightStart = iv.start
		}
		if iv.end.After(finalWake) {
			finalWake = iv.end
		}
	}

	sleepOnset := asleepMerged[0].start
	lastAsleepEnd := asleepMerged[len(asleepMerged)-1].end
	for _, iv := range asleepMerged {
		if iv.start.Before(sleepOnset) {
			sleepOnset = iv.start
		}
		if iv.end.After(lastAsleepEnd) {
			lastAsleepEnd = iv.end
		}
	}
	if lastAsleepEnd.After(finalWake) {
		finalWake = lastAsleepEnd
	}

	// WASO counts only awake time between sleep onset and final wake;
	// intervals outside that window are clipped out below.
	awakeMerged := mergeIntervals(byStage[model.StageAwake])
	var waso time.Duration
	var awakenings int
	for _, iv := range awakeMerged {
		clippedStart, clippedEnd := iv.start, iv.end
		if clippedStart.Before(sleepOnset) {
			clippedStart = sleepOnset
		}
		if clippedEnd.After(finalWake) {
			clippedEnd = finalWake
		}
		if clippedEnd.After(clippedStart) {
			waso += clippedEnd.Sub(clippedStart)
			awakenings++
		}
	}

	timeInBedMin := totalDuration(inBed).Minutes()
	totalSleepMin := totalSleep.Minutes()
	efficiency := 0.0
	if timeInBedMin > 0 {
		efficiency = totalSleepMin / timeInBedMin * 100
	}
	fragmentation := 0.0
	if totalSleepMin > 0 {
		fragmentation = float64(awakenings) / (totalSleepMin / 60)
	}

	coreMin := totalDuration(byStage[model.StageCore]).Minutes()
	deepMin := totalDuration(byStage[model.StageDeep]).Minutes()
	remMin := totalDuration(byStage[model.StageREM]).Minutes()

	midSleep := sleepOnset.Add(lastAsleepEnd.Sub(sleepOnset) / 2)

	now := time.Now().UTC()
	return model.SleepNight{
		User:               user,
		SleepDate:          sleepDate,
		Timezone:           timezone,
		NightStart:         nightStart,
		FinalWake:          finalWake,
		SleepOnset:         sleepOnset,
		TimeInBedMin:       timeInBedMin,
		TotalSleepMin:      totalSleepMin,
		SleepEfficiencyPct: efficiency,
		SleepLatencyMin:    sleepOnset.Sub(nightStart).Minutes(),
		WASOMin:            waso.Minutes(),
		NumAwakenings:      awakenings,
		CoreMin:            coreMin,
		DeepMin:            deepMin,
		REMMin:             remMin,
		FragmentationIndex: fragmentation,
		BedtimeLocal:       nightStart.In(loc).Format("15:04"),
		WaketimeLocal:      finalWake.In(loc).Format("15:04"),
		MidSleepTimeLocal:  midSleep.In(loc).Format("15:04"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
