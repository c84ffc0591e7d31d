// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"strconv"
	"time"
)

// MeasurementSource records how a measurement entered the system.
type MeasurementSource string

const (
	SourceManual      MeasurementSource = "manual"
	SourceAIExtracted MeasurementSource = "ai_extracted"
	SourceCorrected   MeasurementSource = "corrected"
)

// Flag is a categorical annotation derived from a measurement's selected
// ReferenceRange.
type Flag string

const (
	FlagOptimal      Flag = "optimal"
	FlagLow          Flag = "low"
	FlagHigh         Flag = "high"
	FlagCriticalLow  Flag = "critical_low"
	FlagCriticalHigh Flag = "critical_high"
)

// TestSession groups measurements collected together, typically one lab
// draw or one manual-entry batch.
type TestSession struct {
	Id        string
	User      string
	Source    MeasurementSource
	TestDate  time.Time
	Notes     *string
	CreatedAt time.Time
}

// Measurement is one normalised observation of a Biomarker for a user.
// ValueCanonical and UnitCanonical are guaranteed non-nil/non-empty once the
// record exists -- creation always routes through the normalisation engine.
type Measurement struct {
	Id          string
	Session     string
	BiomarkerId string
	Source      MeasurementSource

	ValueRaw float64
	UnitRaw  string

	ValueCanonical float64
	UnitCanonical  string
	ValueDisplay   float64

	ReferenceLow  *float64
	ReferenceHigh *float64
	Flags         []Flag
	Warnings      []string

	NormalizationContext NormalisationContext

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy *string
}

// Fingerprint is the cache key component described in:
// "{measurement_id}:{value_canonical}". It changes whenever the canonical
// value changes, busting any insight cache entry keyed on the old value.
func (m Measurement) Fingerprint() string {
	return m.Id + ":" + strconv.FormatFloat(m.ValueCanonical, 'g', 10, 64)
}
