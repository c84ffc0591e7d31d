// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package normalize implements the normalisation engine: a pure function
// mapping a raw (name, value, unit) observation plus a user context to a
// canonical measurement, a selected reference range, and the flags/warnings
// derived from it.
//
// # Purity
//
// Normalise takes no locks, performs no I/O, and never mutates its inputs.
// Given a fixed catalog snapshot, the same (input, context) pair always
// produces the same Result -- the basis for both caching (insight
// fingerprints) and deterministic testing.
package normalize

import (
	"strings"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
)

// Input is the raw observation to normalise.
type Input struct {
	Name  string
	Value float64
	Unit  string
}

// CatalogReader is the read-only slice of the Reference Catalog the engine
// needs. internal/catalog.Catalog satisfies it; tests can substitute a
// hand-built fake.
type CatalogReader interface {
	ResolveName(name string) (model.Biomarker, bool)
	Conversions(biomarkerId string) []model.UnitConversion
	Ranges(biomarkerId string) []model.ReferenceRange
}

// Result is everything produced by one normalisation call: the canonical
// value/unit, the selected range, derived flags, human-facing warnings, and
// the exact context used, sufficient to reproduce the calculation later.
type Result struct {
	BiomarkerId    string
	ValueCanonical float64
	UnitCanonical  string
	SelectedRange  *model.ReferenceRange
	Flags          []model.Flag
	Warnings       []string
	ContextUsed    model.NormalisationContext
}

// Normalise resolves a biomarker name, converts its unit to canonical form,
// selects the best-matching reference range, and assigns flags. It never
// panics; every failure mode returns a *apierr.Error with a specific Kind.
func Normalise(catalog CatalogReader, input Input, ctx model.NormalisationContext) (Result, error) {
	biomarker, ok := catalog.ResolveName(input.Name)
	if !ok {
		return Result{}, apierr.New(apierr.KindBiomarkerNotFound,
			"no biomarker matches name "+quoted(input.Name))
	}

	canonicalValue, err := convertUnit(catalog, biomarker, input.Unit, input.Value)
	if err != nil {
		return Result{}, err
	}

	ranges := catalog.Ranges(biomarker.Id)
	selected, warnings := selectRange(biomarker, ranges, ctx)

	flags := assignFlags(canonicalValue, selected)

	return Result{
		BiomarkerId:    biomarker.Id,
		ValueCanonical: canonicalValue,
		UnitCanonical:  biomarker.CanonicalUnit,
		SelectedRange:  selected,
		Flags:          flags,
		Warnings:       warnings,
		ContextUsed:    ctx,
	}, nil
}

// convertUnit handles pass-through, a direct conversion edge, or a two-hop
// path through the canonical unit of an intermediate conversion.
func convertUnit(catalog CatalogReader, b model.Biomarker, fromUnit string, value float64) (float64, error) {
	if unitsEqual(fromUnit, b.CanonicalUnit) {
		return value, nil
	}

	edges := catalog.Conversions(b.Id)

	if edge, ok := findEdge(edges, fromUnit, b.CanonicalUnit); ok {
		return applyEdge(edge, value), nil
	}

	// Two-hop: fromUnit -> intermediate -> canonical.
	for _, first := range edges {
		if !unitsEqual(first.FromUnit, fromUnit) {
			continue
		}
		mid := applyEdge(first, value)
		if second, ok := findEdge(edges, first.ToUnit, b.CanonicalUnit); ok {
			return applyEdge(second, mid), nil
		}
		if unitsEqual(first.ToUnit, b.CanonicalUnit) {
			return mid, nil
		}
	}

	return 0, apierr.New(apierr.KindUnitConversionError,
		"no conversion path from "+quoted(fromUnit)+" to "+quoted(b.CanonicalUnit)+" for "+b.Id)
}

func findEdge(edges []model.UnitConversion, from, to string) (model.UnitConversion, bool) {
	for _, e := range edges {
		if unitsEqual(e.FromUnit, from) && unitsEqual(e.ToUnit, to) {
			return e, true
		}
	}
	return model.UnitConversion{}, false
}

func applyEdge(e model.UnitConversion, value float64) float64 {
	switch e.Kind {
	case model.ConversionAffine:
		return value*e.Multiplier + e.Offset
	default: // LINEAR
		return value * e.Multiplier
	}
}

func unitsEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// selectRange scores every candidate range against ctx, excludes incompatible
// ones, and tie-breaks by specificity then deterministic source priority.
// Falls back to the biomarker's global default range when nothing matches,
// and emits a warning when that fallback, or any narrower miss, occurs.
func selectRange(b model.Biomarker, ranges []model.ReferenceRange, ctx model.NormalisationContext) (*model.ReferenceRange, []string) {
	var best *model.ReferenceRange

	for i := range ranges {
		r := ranges[i]
		if incompatible(r.Context, ctx) {
			continue
		}
		if best == nil || betterCandidate(r, *best, ctx) {
			best = &ranges[i]
		}
	}

	var warnings []string

	if best == nil {
		if b.GlobalDefaultRefMin != nil && b.GlobalDefaultRefMax != nil {
			warnings = append(warnings, "no matching reference range; used the biomarker's global default")
			return &model.ReferenceRange{
				BiomarkerId: b.Id,
				Unit:        b.CanonicalUnit,
				Low:         *b.GlobalDefaultRefMin,
				High:        *b.GlobalDefaultRefMax,
			}, warnings
		}
		warnings = append(warnings, "no reference range available for this biomarker")
		return nil, warnings
	}

	if best.Context.Sex == nil && anySexSpecific(ranges) {
		warnings = append(warnings, "no sex-specific range available")
	}
	if best.Context.AgeYearsMin == nil && best.Context.AgeYearsMax == nil && anyAgeSpecific(ranges) {
		warnings = append(warnings, "no age-specific range available")
	}
	return best, warnings
}

func anySexSpecific(ranges []model.ReferenceRange) bool {
	for _, r := range ranges {
		if r.Context.Sex != nil {
			return true
		}
	}
	return false
}

func anyAgeSpecific(ranges []model.ReferenceRange) bool {
	for _, r := range ranges {
		if r.Context.AgeYearsMin != nil || r.Context.AgeYearsMax != nil {
			return true
		}
	}
	return false
}

// incompatible reports whether a range's context contradicts a concrete,
// known dimension of ctx -- such ranges are never eligible regardless of
// how well the rest of their context matches.
func incompatible(rc model.RangeContext, ctx model.NormalisationContext) bool {
	if rc.Sex != nil && ctx.Sex != nil && *rc.Sex != *ctx.Sex {
		return true
	}
	if ctx.AgeYears != nil {
		if rc.AgeYearsMin != nil && *ctx.AgeYears < *rc.AgeYearsMin {
			return true
		}
		if rc.AgeYearsMax != nil && *ctx.AgeYears > *rc.AgeYearsMax {
			return true
		}
	}
	if rc.Fasting != nil && ctx.Fasting != nil && *rc.Fasting != *ctx.Fasting {
		return true
	}
	if rc.Pregnancy != nil && ctx.Pregnancy != nil && *rc.Pregnancy != *ctx.Pregnancy {
		return true
	}
	if rc.Method != nil && ctx.Method != nil && !strings.EqualFold(*rc.Method, *ctx.Method) {
		return true
	}
	if rc.LabId != nil && ctx.LabId != nil && *rc.LabId != *ctx.LabId {
		return true
	}
	return false
}

// matchScore scores a range's context against ctx: +2 for an exact sex
// match, +2 for age-in-band, +1 each for a fasting/pregnancy/method/lab
// match.
func matchScore(rc model.RangeContext, ctx model.NormalisationContext) int {
	score := 0
	if rc.Sex != nil && ctx.Sex != nil && *rc.Sex == *ctx.Sex {
		score += 2
	}
	if ageInBand(rc, ctx) {
		score += 2
	}
	if rc.Fasting != nil && ctx.Fasting != nil && *rc.Fasting == *ctx.Fasting {
		score++
	}
	if rc.Pregnancy != nil && ctx.Pregnancy != nil && *rc.Pregnancy == *ctx.Pregnancy {
		score++
	}
	if rc.Method != nil && ctx.Method != nil && strings.EqualFold(*rc.Method, *ctx.Method) {
		score++
	}
	if rc.LabId != nil && ctx.LabId != nil && *rc.LabId == *ctx.LabId {
		score++
	}
	return score
}

func ageInBand(rc model.RangeContext, ctx model.NormalisationContext) bool {
	if ctx.AgeYears == nil || (rc.AgeYearsMin == nil && rc.AgeYearsMax == nil) {
		return false
	}
	if rc.AgeYearsMin != nil && *ctx.AgeYears < *rc.AgeYearsMin {
		return false
	}
	if rc.AgeYearsMax != nil && *ctx.AgeYears > *rc.AgeYearsMax {
		return false
	}
	return true
}

// betterCandidate reports whether r should replace cur as the selected
// range. Order of preference: higher match score wins; on a tie, fewer
// unconfirmed constraints wins (a range narrowed on a
// dimension ctx can't speak to is no better a match than one that leaves
// it open); on a further tie, more confirmed (actually matched)
// constraints wins; finally the lower SourcePriority wins.
func betterCandidate(r, cur model.ReferenceRange, ctx model.NormalisationContext) bool {
	rScore, curScore := matchScore(r.Context, ctx), matchScore(cur.Context, ctx)
	if rScore != curScore {
		return rScore > curScore
	}
	rUnconf, curUnconf := unconfirmedSpecificity(r.Context, ctx), unconfirmedSpecificity(cur.Context, ctx)
	if rUnconf != curUnconf {
		return rUnconf < curUnconf
	}
	rConf, curConf := confirmedSpecificity(r.Context, ctx), confirmedSpecificity(cur.Context, ctx)
	if rConf != curConf {
		return rConf > curConf
	}
	return r.SourcePriority < cur.SourcePriority
}

// confirmedSpecificity counts the dimensions of rc that ctx actually
// supplies a value for. Since incompatible ranges are excluded before this
// is consulted, a dimension present on both sides is necessarily a match,
// not merely a coincidental non-conflict.
func confirmedSpecificity(rc model.RangeContext, ctx model.NormalisationContext) int {
	n := 0
	if rc.Sex != nil && ctx.Sex != nil {
		n++
	}
	if (rc.AgeYearsMin != nil || rc.AgeYearsMax != nil) && ctx.AgeYears != nil {
		n++
	}
	if rc.Fasting != nil && ctx.Fasting != nil {
		n++
	}
	if rc.Pregnancy != nil && ctx.Pregnancy != nil {
		n++
	}
	if rc.Method != nil && ctx.Method != nil {
		n++
	}
	if rc.LabId != nil && ctx.LabId != nil {
		n++
	}
	return n
}

// unconfirmedSpecificity counts the dimensions of rc that ctx has no
// opinion on -- constraints this range imposes that this particular
// measurement's context can neither confirm nor rule out.
func unconfirmedSpecificity(rc model.RangeContext, ctx model.NormalisationContext) int {
	n := 0
	if rc.Sex != nil && ctx.Sex == nil {
		n++
	}
	if (rc.AgeYearsMin != nil || rc.AgeYearsMax != nil) && ctx.AgeYears == nil {
		n++
	}
	if rc.Fasting != nil && ctx.Fasting == nil {
		n++
	}
	if rc.Pregnancy != nil && ctx.Pregnancy == nil {
		n++
	}
	if rc.Method != nil && ctx.Method == nil {
		n++
	}
	if rc.LabId != nil && ctx.LabId == nil {
		n++
	}
	return n
}

// assignFlags derives a Flag from value against the selected range, critical
// bounds taking precedence over the plain low/high bounds.
func assignFlags(value float64, r *model.ReferenceRange) []model.Flag {
	if r == nil {
		return nil
	}
	if r.CriticalLow != nil && value < *r.CriticalLow {
		return []model.Flag{model.FlagCriticalLow}
	}
	if r.CriticalHigh != nil && value > *r.CriticalHigh {
		return []model.Flag{model.FlagCriticalHigh}
	}
	if value < r.Low {
		return []model.Flag{model.FlagLow}
	}
	if value > r.High {
		return []model.Flag{model.FlagHigh}
	}
	return []model.Flag{model.FlagOptimal}
}

func quoted(s string) string { return "\"" + s + "\"" }
