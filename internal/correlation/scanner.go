// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package correlation implements the §4.8 "Correlation-driven Daily
// Insights" scheduled pass: a deterministic scan of recent daily
// feature rows plus the user's life-event log that proposes pattern
// cards, distinct from the LLM-backed internal/insightgen -- no vendor
// call sits on this hot path, only heuristic bucketed-direction
// detection.
package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flomentum/vitalscore/internal/model"
)

// Direction buckets the sign of a correlated deviation for the
// pattern_signature -- the hash must be stable for "RHR goes up after
// alcohol" regardless of whether today's specific delta was 6 or 9 bpm.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Rule is one configured correlation heuristic: it looks for a life
// event category whose occurrence within WindowHours precedes a
// deviation in TargetBiomarker beyond ThresholdDelta, in Direction.
type Rule struct {
	EventCategory   string
	TargetBiomarker string
	WindowHours     int
	ThresholdDelta  float64
	Direction       Direction
	Title           string
	BodyTemplate    string // formatted with (occurrences, opportunities, average delta)
}

// Candidate is one proposed, not-yet-persisted insight card.
type Candidate struct {
	Card             model.InsightCard
	Occurrences      int
	TotalOpportunities int
}

// Scanner evaluates a fixed rule set against a window of daily metric
// rows and life events.
type Scanner struct {
	rules               []Rule
	confidenceThreshold float64
}

// New constructs a Scanner with the given rules and the minimum
// confidence_score (config.Config.InsightConfidenceThreshold) a
// candidate needs to be persisted.
func New(rules []Rule, confidenceThreshold float64) *Scanner {
	return &Scanner{rules: rules, confidenceThreshold: confidenceThreshold}
}

// Scan evaluates every rule against days (ascending by LocalDate) and
// events, returning only candidates meeting the confidence threshold.
func (s *Scanner) Scan(user string, days []model.DailyMetricRow, events []model.LifeEvent, now time.Time) []Candidate {
	byDate := make(map[string]model.DailyMetricRow, len(days))
	for _, d := range days {
		byDate[d.LocalDate] = d
	}

	var out []Candidate
	for _, rule := range s.rules {
		occurrences, opportunities, avgDelta := s.evaluateRule(rule, byDate, events)
		if opportunities == 0 {
			continue
		}
		confidence := float64(occurrences) / float64(opportunities)
		if confidence < s.confidenceThreshold {
			continue
		}

		sig := PatternSignature(model.InsightCorrelation, rule.TargetBiomarker, rule.Direction)
		body := fmt.Sprintf(rule.BodyTemplate, occurrences, opportunities, avgDelta)
		card := model.InsightCard{
			Id:               uuid.NewString(),
			User:             user,
			Category:         model.InsightCorrelation,
			Title:            rule.Title,
			Body:             body,
			TargetBiomarker:  &rule.TargetBiomarker,
			ConfidenceScore:  confidence,
			PatternSignature: sig,
			GeneratedDate:    now.Format("2006-01-02"),
			IsNew:            true,
			CreatedAt:        now,
		}
		out = append(out, Candidate{Card: card, Occurrences: occurrences, TotalOpportunities: opportunities})
	}
	return out
}

// evaluateRule counts, across every life event in rule.EventCategory,
// how often the target biomarker moved by more than ThresholdDelta in
// Direction within WindowHours afterward, against how many such events
// had enough surrounding data to judge at all.
func (s *Scanner) evaluateRule(rule Rule, byDate map[string]model.DailyMetricRow, events []model.LifeEvent) (occurrences, opportunities int, avgDelta float64) {
	var deltaSum float64
	for _, ev := range events {
		if ev.Category != rule.EventCategory {
			continue
		}
		before, ok1 := dayValue(byDate, ev.OccurredAt.AddDate(0, 0, -1), rule.TargetBiomarker)
		after, ok2 := dayValue(byDate, ev.OccurredAt.Add(time.Duration(rule.WindowHours)*time.Hour), rule.TargetBiomarker)
		if !ok1 || !ok2 {
			continue
		}
		opportunities++
		delta := after - before
		matches := (rule.Direction == DirectionUp && delta >= rule.ThresholdDelta) ||
			(rule.Direction == DirectionDown && delta <= -rule.ThresholdDelta)
		if matches {
			occurrences++
			deltaSum += delta
		}
	}
	if occurrences > 0 {
		avgDelta = deltaSum / float64(occurrences)
	}
	return occurrences, opportunities, avgDelta
}

func dayValue(byDate map[string]model.DailyMetricRow, t time.Time, biomarker string) (float64, bool) {
	row, ok := byDate[t.Format("2006-01-02")]
	if !ok {
		return 0, false
	}
	switch biomarker {
	case "resting_heart_rate":
		if row.RestingHR != nil {
			return *row.RestingHR, true
		}
	case "hrv_ms":
		if row.HRVMs != nil {
			return *row.HRVMs, true
		}
	case "respiratory_rate":
		if row.RespiratoryRate != nil {
			return *row.RespiratoryRate, true
		}
	}
	return 0, false
}

// PatternSignature deterministically hashes {category, target_biomarker,
// bucketed direction} so two scans over the same underlying pattern
// produce the same signature and are deduplicated rather than
// re-created daily (§8 testable property).
func PatternSignature(category model.InsightCategory, targetBiomarker string, direction Direction) string {
	h := sha256.Sum256([]byte(string(category) + "|" + targetBiomarker + "|" + string(direction)))
	return hex.EncodeToString(h[:])[:24]
}
