// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import "time"

// SampleType enumerates the raw wearable sample kinds the Daily Aggregator
// understands.
type SampleType string

const (
	SampleSteps           SampleType = "steps"
	SampleActiveEnergy    SampleType = "active_energy_kcal"
	SampleHeartRate       SampleType = "heart_rate"
	SampleHRV             SampleType = "hrv_ms"
	SampleRestingHR       SampleType = "resting_heart_rate"
	SampleRespiratoryRate SampleType = "respiratory_rate"
	SampleOxygenSaturation SampleType = "oxygen_saturation"
	SampleExerciseMinutes SampleType = "exercise_minutes"
	SampleStandHours      SampleType = "stand_hours"
	SampleWeight          SampleType = "weight_kg"
	SampleBodyFatPct      SampleType = "body_fat_pct"
)

// RawSample is one wearable observation ingested via /healthkit/samples.
// UUID makes ingestion idempotent: re-sending the same batch must not
// double-count.
type RawSample struct {
	UUID   string
	Type   SampleType
	Value  float64
	Unit   string
	Start  time.Time
	End    time.Time
	Source string
}

// DailyMetricRow is the per (user, local_date) reduction of a day's raw
// samples. Exactly one row exists per key; concurrent ingest
// from multiple devices upserts it, last-writer-wins by UpdatedAt.
type DailyMetricRow struct {
	User         string
	LocalDate    string // YYYY-MM-DD in Timezone
	Timezone     string
	UTCDayStart  time.Time
	UTCDayEnd    time.Time

	StepsTotal      *float64
	StepsSources    map[string]float64
	ActiveEnergyKcal *float64
	ExerciseMinutes  *float64
	StandHours       *float64

	RestingHR          *float64
	HRVMs              *float64
	RespiratoryRate    *float64
	OxygenSaturationPct *float64

	SleepHours *float64

	WeightKg     *float64
	BodyFatPct   *float64
	BMI          *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SleepStage enumerates the interval-sample stages the Sleep Sample
// Processor merges.
type SleepStage string

const (
	StageInBed       SleepStage = "inBed"
	StageAsleep      SleepStage = "asleep"
	StageAwake       SleepStage = "awake"
	StageCore        SleepStage = "core"
	StageDeep        SleepStage = "deep"
	StageREM         SleepStage = "rem"
	StageUnspecified SleepStage = "unspecified"
)

// SleepIntervalSample is one raw stage interval fed into the Sleep Sample
// Processor.
type SleepIntervalSample struct {
	UUID  string
	Start time.Time
	End   time.Time
	Stage SleepStage
}

// SleepNight is the derived (or client-supplied) nightly sleep summary.
type SleepNight struct {
	User      string
	SleepDate string
	Timezone  string

	NightStart time.Time
	FinalWake  time.Time
	SleepOnset time.Time

	TimeInBedMin   float64
	TotalSleepMin  float64
	SleepEfficiencyPct float64
	SleepLatencyMin    float64
	WASOMin            float64
	NumAwakenings      int

	CoreMin float64
	DeepMin float64
	REMMin  float64

	FragmentationIndex float64
	BedtimeLocal       string
	WaketimeLocal      string
	MidSleepTimeLocal  string

	CreatedAt time.Time
	UpdatedAt time.Time
}
