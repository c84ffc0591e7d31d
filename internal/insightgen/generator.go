// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insightgen implements the §4.8 Generator: it consumes the
// latest measurement, trend history, a profile snapshot, and the
// selected reference range, and emits a structured
// model.GeneratedInsightPayload. Output is opaque to the rest of the
// core -- only its shape is validated, never its content.
package insightgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/flomentum/vitalscore/internal/aivendor"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/logging"
)

// ProfileSnapshot is the subset of user profile state the generator's
// prompt is conditioned on. It is intentionally narrow: the generator
// never sees anything beyond what is needed to phrase one insight.
type ProfileSnapshot struct {
	AgeYears *float64
	Sex      *string
}

// Request bundles everything the Generator needs for one biomarker's
// insight card.
type Request struct {
	User            string
	Measurement     model.Measurement
	Biomarker       model.Biomarker
	SelectedRange   model.ReferenceRange
	TrendHistory    []model.Measurement // newest-first, capped to 5 by the caller
	Profile         ProfileSnapshot
}

var promptTemplate = prompts.NewPromptTemplate(
	`You are a health-data assistant producing a structured insight card for
a single biomarker result. Respond ONLY with a JSON object matching this
shape: {{"lifestyleActions":[...],"nutrition":[...],"supplementation":[...],"medicalReferral":null|"...","medicalUrgency":"none|routine|prompt|urgent"}}.

Biomarker: {{.biomarker}} ({{.category}})
Latest value: {{.value}} {{.unit}} (flags: {{.flags}})
Reference range: {{.refLow}} - {{.refHigh}} {{.unit}}
Trend (newest first): {{.trend}}
Profile: age={{.age}} sex={{.sex}}

Be specific and actionable. Never diagnose; never prescribe a dose.`,
	[]string{"biomarker", "category", "value", "unit", "flags", "refLow", "refHigh", "trend", "age", "sex"},
)

// Generator drives a conversational Vendor to produce one insight card
// body per request.
type Generator struct {
	vendor aivendor.Vendor
	logger *logging.Logger
}

// New constructs a Generator over the given Vendor.
func New(vendor aivendor.Vendor, logger *logging.Logger) *Generator {
	return &Generator{vendor: vendor, logger: logger}
}

// Generate calls the configured Vendor and parses its response into a
// model.GeneratedInsightPayload. A malformed vendor response is an
// ExtractionFailure-flavoured error from the caller's perspective --
// insightgen itself only reports the raw parse failure; callers decide
// whether to fall back to a cached entry.
func (g *Generator) Generate(ctx context.Context, req Request) (model.GeneratedInsightPayload, error) {
	prompt, err := g.render(req)
	if err != nil {
		return model.GeneratedInsightPayload{}, fmt.Errorf("render insight prompt: %w", err)
	}

	raw, err := g.vendor.Chat(ctx, []aivendor.ChatMessage{
		{Role: "system", Content: "You produce only valid JSON, no prose outside the JSON object."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return model.GeneratedInsightPayload{}, err
	}

	var payload model.GeneratedInsightPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return model.GeneratedInsightPayload{}, fmt.Errorf("parse vendor response as insight payload: %w", err)
	}
	return payload, nil
}

func (g *Generator) render(req Request) (rendered string, err error) {
	flags := make([]string, 0, len(req.Measurement.Flags))
	for _, f := range req.Measurement.Flags {
		flags = append(flags, string(f))
	}
	trend := make([]string, 0, len(req.TrendHistory))
	for _, m := range req.TrendHistory {
		trend = append(trend, fmt.Sprintf("%.2f %s", m.ValueCanonical, m.UnitCanonical))
	}

	age := "unknown"
	if req.Profile.AgeYears != nil {
		age = fmt.Sprintf("%.0f", *req.Profile.AgeYears)
	}
	sex := "unknown"
	if req.Profile.Sex != nil {
		sex = *req.Profile.Sex
	}

	refLow := fmt.Sprintf("%.2f", req.SelectedRange.Low)
	refHigh := fmt.Sprintf("%.2f", req.SelectedRange.High)

	return promptTemplate.Format(map[string]any{
		"biomarker": req.Biomarker.CanonicalName,
		"category":  req.Biomarker.Category,
		"value":     fmt.Sprintf("%.2f", req.Measurement.ValueCanonical),
		"unit":      req.Measurement.UnitCanonical,
		"flags":     strings.Join(flags, ","),
		"refLow":    refLow,
		"refHigh":   refHigh,
		"trend":     strings.Join(trend, ", "),
		"age":       age,
		"sex":       sex,
	})
}

// extractJSON trims any leading/trailing prose a vendor adds despite
// instructions, returning the substring between the outermost braces.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
