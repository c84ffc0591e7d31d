// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/model"
)

func sexPtr(s model.Sex) *model.Sex { return &s }
func f64Ptr(v float64) *float64     { return &v }
func boolPtr(v bool) *bool          { return &v }

func testCatalog() *catalog.Catalog {
	c := catalog.New()
	c.Reload(catalog.CatalogFile{
		Biomarkers: []model.Biomarker{
			{
				Id: "glucose", CanonicalName: "Glucose", CanonicalUnit: "mmol/L",
				Category: model.CategoryMetabolic,
				GlobalDefaultRefMin: f64Ptr(3.9), GlobalDefaultRefMax: f64Ptr(5.5),
			},
			{
				Id: "ferritin", CanonicalName: "Ferritin", CanonicalUnit: "ug/L",
				Category: model.CategoryHematology,
			},
		},
		Synonyms: []model.Synonym{
			{BiomarkerId: "glucose", Label: "Glucose"},
			{BiomarkerId: "glucose", Label: "Fasting Glucose"},
			{BiomarkerId: "ferritin", Label: "Ferritin"},
		},
		Conversions: []model.UnitConversion{
			{BiomarkerId: "glucose", FromUnit: "mg/dL", ToUnit: "mmol/L", Kind: model.ConversionLinear, Multiplier: 0.0555},
		},
		Ranges: []model.ReferenceRange{
			{BiomarkerId: "ferritin", Unit: "ug/L", Low: 15, High: 150, SourcePriority: 1,
				Context: model.RangeContext{Sex: sexPtr(model.SexFemale)}},
			{BiomarkerId: "ferritin", Unit: "ug/L", Low: 30, High: 300, SourcePriority: 1,
				Context: model.RangeContext{Sex: sexPtr(model.SexMale)}},
			{BiomarkerId: "ferritin", Unit: "ug/L", Low: 20, High: 250, SourcePriority: 2,
				CriticalLow: f64Ptr(5), CriticalHigh: f64Ptr(500),
				Context: model.RangeContext{}},
		},
	})
	return c
}

func TestNormaliseUnknownBiomarker(t *testing.T) {
	c := testCatalog()
	_, err := Normalise(c, Input{Name: "unobtainium", Value: 1, Unit: "x"}, model.NormalisationContext{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindBiomarkerNotFound))
}

func TestNormaliseDirectUnitConversion(t *testing.T) {
	c := testCatalog()
	res, err := Normalise(c, Input{Name: "glucose", Value: 90, Unit: "mg/dL"}, model.NormalisationContext{})
	require.NoError(t, err)
	assert.InDelta(t, 4.995, res.ValueCanonical, 1e-9)
	assert.Equal(t, "mmol/L", res.UnitCanonical)
}

func TestNormalisePassthroughUnit(t *testing.T) {
	c := testCatalog()
	res, err := Normalise(c, Input{Name: "glucose", Value: 5.0, Unit: "mmol/L"}, model.NormalisationContext{})
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.ValueCanonical)
}

func TestNormaliseUnknownUnitPath(t *testing.T) {
	c := testCatalog()
	_, err := Normalise(c, Input{Name: "glucose", Value: 5, Unit: "furlongs"}, model.NormalisationContext{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindUnitConversionError))
}

func TestNormaliseSexSpecificRangeSelection(t *testing.T) {
	c := testCatalog()

	res, err := Normalise(c, Input{Name: "ferritin", Value: 20, Unit: "ug/L"}, model.NormalisationContext{Sex: sexPtr(model.SexFemale)})
	require.NoError(t, err)
	require.NotNil(t, res.SelectedRange)
	assert.Equal(t, 15.0, res.SelectedRange.Low)
	assert.Equal(t, 150.0, res.SelectedRange.High)
	assert.Equal(t, []model.Flag{model.FlagOptimal}, res.Flags)

	res, err = Normalise(c, Input{Name: "ferritin", Value: 20, Unit: "ug/L"}, model.NormalisationContext{Sex: sexPtr(model.SexMale)})
	require.NoError(t, err)
	require.NotNil(t, res.SelectedRange)
	assert.Equal(t, 30.0, res.SelectedRange.Low)
	assert.Equal(t, []model.Flag{model.FlagLow}, res.Flags)
}

func TestNormaliseFallsBackToBroadestRangeWhenSexUnknown(t *testing.T) {
	c := testCatalog()
	res, err := Normalise(c, Input{Name: "ferritin", Value: 10, Unit: "ug/L"}, model.NormalisationContext{})
	require.NoError(t, err)
	require.NotNil(t, res.SelectedRange)
	assert.Equal(t, 20.0, res.SelectedRange.Low)
	assert.Equal(t, []model.Flag{model.FlagLow}, res.Flags)
	assert.Contains(t, res.Warnings, "no sex-specific range available")
}

func TestNormaliseCriticalFlag(t *testing.T) {
	c := testCatalog()
	res, err := Normalise(c, Input{Name: "ferritin", Value: 2, Unit: "ug/L"}, model.NormalisationContext{})
	require.NoError(t, err)
	assert.Equal(t, []model.Flag{model.FlagCriticalLow}, res.Flags)
}

func TestNormaliseUsesGlobalDefaultWhenNoRangeDeclared(t *testing.T) {
	c := testCatalog()
	res, err := Normalise(c, Input{Name: "glucose", Value: 6.0, Unit: "mmol/L"}, model.NormalisationContext{})
	require.NoError(t, err)
	require.NotNil(t, res.SelectedRange)
	assert.Equal(t, 3.9, res.SelectedRange.Low)
	assert.Equal(t, 5.5, res.SelectedRange.High)
	assert.Equal(t, []model.Flag{model.FlagHigh}, res.Flags)
	assert.Contains(t, res.Warnings, "no matching reference range; used the biomarker's global default")
}

func TestNormaliseExcludesIncompatibleContext(t *testing.T) {
	c := testCatalog()
	c.Reload(catalog.CatalogFile{
		Biomarkers: []model.Biomarker{{Id: "ferritin", CanonicalName: "Ferritin", CanonicalUnit: "ug/L"}},
		Synonyms:   []model.Synonym{{BiomarkerId: "ferritin", Label: "Ferritin"}},
		Ranges: []model.ReferenceRange{
			{BiomarkerId: "ferritin", Unit: "ug/L", Low: 10, High: 50,
				Context: model.RangeContext{Fasting: boolPtr(true)}},
		},
	})
	res, err := Normalise(c, Input{Name: "ferritin", Value: 20, Unit: "ug/L"}, model.NormalisationContext{Fasting: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, res.SelectedRange)
	assert.Contains(t, res.Warnings, "no reference range available for this biomarker")
}

func TestNormaliseContextUsedRoundTrips(t *testing.T) {
	c := testCatalog()
	ctx := model.NormalisationContext{Sex: sexPtr(model.SexFemale), AgeYears: f64Ptr(34)}
	res, err := Normalise(c, Input{Name: "ferritin", Value: 20, Unit: "ug/L"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, ctx, res.ContextUsed)
}
