// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package model holds the entity types shared across the health-signal
// processing pipeline: biomarkers, measurements, daily aggregates, sleep
// nights, baselines, insight cards and forecast artifacts.
//
// Every field that can be legitimately absent for a given user or record is
// modeled as a pointer, never as a zero value standing in for "unknown" --
// a user with no recorded sex and a user recorded as female are different
// states and must never collapse onto the same Go value.
package model

// BiomarkerCategory groups biomarkers for catalog browsing and UI layout.
type BiomarkerCategory string

const (
	CategoryMetabolic  BiomarkerCategory = "metabolic"
	CategoryLipid      BiomarkerCategory = "lipid"
	CategoryHormone    BiomarkerCategory = "hormone"
	CategoryInflammation BiomarkerCategory = "inflammation"
	CategoryVitamin    BiomarkerCategory = "vitamin"
	CategoryMineral    BiomarkerCategory = "mineral"
	CategoryHematology BiomarkerCategory = "hematology"
	CategoryOrgan      BiomarkerCategory = "organ"
	CategoryCardiac    BiomarkerCategory = "cardiac"
)

// DecimalsPolicy controls how a canonical value is rounded for display.
type DecimalsPolicy string

const (
	DecimalsFixed   DecimalsPolicy = "fixed"   // always round to Biomarker.Precision
	DecimalsSigFigs DecimalsPolicy = "sigfigs" // round to Biomarker.Precision significant figures
)

// Biomarker is immutable reference data describing one measurable analyte.
// Its Id is stable across catalog reloads and releases; nothing else in the
// system ever refers to a biomarker by name.
type Biomarker struct {
	Id                    string            `yaml:"id"`
	CanonicalName         string            `yaml:"canonical_name"`
	Category              BiomarkerCategory `yaml:"category"`
	CanonicalUnit         string            `yaml:"canonical_unit"`
	DisplayUnitPreference string            `yaml:"display_unit_preference"`
	Precision             int               `yaml:"precision"`
	DecimalsPolicy        DecimalsPolicy    `yaml:"decimals_policy"`
	GlobalDefaultRefMin   *float64          `yaml:"global_default_ref_min"`
	GlobalDefaultRefMax   *float64          `yaml:"global_default_ref_max"`
}

// Synonym is a case-insensitive alternate label for a Biomarker. Labels are
// unique per biomarker but two different biomarkers may legitimately share a
// synonym spelling in different contexts (disambiguated by catalog load
// order / explicit precedence, never silently).
type Synonym struct {
	BiomarkerId string `yaml:"biomarker_id"`
	Label       string `yaml:"label"`
}

// UnitConversionKind selects the arithmetic used to reach the canonical unit.
type UnitConversionKind string

const (
	ConversionLinear UnitConversionKind = "LINEAR"
	ConversionAffine UnitConversionKind = "AFFINE"
)

// UnitConversion is one directional edge in the unit graph for a biomarker.
//
//	LINEAR: canonical = raw * Multiplier
//	AFFINE: canonical = raw * Multiplier + Offset
type UnitConversion struct {
	BiomarkerId string             `yaml:"biomarker_id"`
	FromUnit    string             `yaml:"from_unit"`
	ToUnit      string             `yaml:"to_unit"`
	Kind        UnitConversionKind `yaml:"kind"`
	Multiplier  float64            `yaml:"multiplier"`
	Offset      float64            `yaml:"offset"`
}

// Sex is a closed enum; nil context fields are distinguished from an
// explicit "unknown" -- callers that don't know the user's sex simply omit
// the pointer rather than setting a sentinel value.
type Sex string

const (
	SexFemale Sex = "female"
	SexMale   Sex = "male"
	SexOther  Sex = "other"
)

// RangeContext is the partial specification a ReferenceRange is keyed on.
// Every field is optional; a range with fewer populated fields is broader
// and loses tie-breaks against a narrower, more specific one.
type RangeContext struct {
	AgeYearsMin *float64 `yaml:"age_years_min"`
	AgeYearsMax *float64 `yaml:"age_years_max"`
	Sex         *Sex     `yaml:"sex"`
	Fasting     *bool    `yaml:"fasting"`
	Pregnancy   *bool    `yaml:"pregnancy"`
	Method      *string  `yaml:"method"`
	LabId       *string  `yaml:"lab_id"`
}

// SpecificityScore counts the populated dimensions, used as the tie-break
// between two ranges that score equally against a measurement's context.
func (c RangeContext) SpecificityScore() int {
	n := 0
	if c.AgeYearsMin != nil || c.AgeYearsMax != nil {
		n++
	}
	if c.Sex != nil {
		n++
	}
	if c.Fasting != nil {
		n++
	}
	if c.Pregnancy != nil {
		n++
	}
	if c.Method != nil {
		n++
	}
	if c.LabId != nil {
		n++
	}
	return n
}

// ReferenceRange is one acceptable band for a Biomarker under Context. A
// biomarker typically carries several, keyed on disjoint or overlapping
// contexts; §4.1 of the design selects exactly one per measurement.
type ReferenceRange struct {
	BiomarkerId  string       `yaml:"biomarker_id"`
	Unit         string       `yaml:"unit"`
	Low          float64      `yaml:"low"`
	High         float64      `yaml:"high"`
	CriticalLow  *float64     `yaml:"critical_low"`
	CriticalHigh *float64     `yaml:"critical_high"`
	Context      RangeContext `yaml:"context"`
	// SourcePriority is the deterministic tie-break when two ranges have
	// identical specificity and score against the same context (lower wins).
	SourcePriority int `yaml:"source_priority"`
}

// NormalisationContext is the user-state supplied to Normalise. It is
// copied (not referenced) into the resulting Measurement as ContextUsed so
// the calculation can be reproduced byte-for-byte later.
type NormalisationContext struct {
	AgeYears  *float64
	Sex       *Sex
	Fasting   *bool
	Pregnancy *bool
	Method    *string
	LabId     *string
}
