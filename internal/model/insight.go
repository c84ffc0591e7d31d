// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import "time"

// InsightCategory groups insight cards for UI layout and correlation scans.
type InsightCategory string

const (
	InsightLifestyle      InsightCategory = "lifestyle"
	InsightNutrition      InsightCategory = "nutrition"
	InsightSupplement     InsightCategory = "supplementation"
	InsightMedicalReferral InsightCategory = "medical_referral"
	InsightCorrelation    InsightCategory = "correlation"
)

// InsightCard is one structured, user-facing insight.
type InsightCard struct {
	Id                string
	User              string
	Category          InsightCategory
	Title             string
	Body              string
	Action            *string
	TargetBiomarker   *string
	CurrentValue      *float64
	TargetValue       *float64
	ConfidenceScore   float64
	PatternSignature  string
	GeneratedDate     string
	IsDismissed       bool
	IsNew             bool
	CreatedAt         time.Time
}

// GeneratedInsightPayload is the opaque-to-the-core structured object the
// LLM-backed generator emits. Only its shape is validated;
// its content is never interpreted by the core.
type GeneratedInsightPayload struct {
	LifestyleActions []string `json:"lifestyleActions"`
	Nutrition        []string `json:"nutrition"`
	Supplementation  []string `json:"supplementation"`
	MedicalReferral  *string  `json:"medicalReferral,omitempty"`
	MedicalUrgency   string   `json:"medicalUrgency"`
}

// CacheEnvelope wraps a cached insight payload with its provenance so a
// caller can tell whether it's a fresh generation or a stale fallback.
type CacheEnvelope struct {
	Payload     GeneratedInsightPayload
	GeneratedAt time.Time
	ExpiresAt   time.Time
	CacheStatus CacheStatus
}

// CacheStatus labels how a CacheEnvelope was produced.
type CacheStatus string

const (
	CacheFresh CacheStatus = "fresh"
	CacheStale CacheStatus = "stale"
)

// LifeEvent is a user-logged event (alcohol, travel, illness, ...) used by
// the correlation scan to propose patterns.
type LifeEvent struct {
	Id        string
	User      string
	Category  string
	OccurredAt time.Time
	Notes     *string
}
