// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bioage implements the biological-age estimator named but
// undetailed in spec.md §6 (`GET /biological-age`). It is a small,
// deterministic weighted-deviation model over a configurable marker
// panel, in the same "pure function of normalised inputs" spirit as
// internal/scoring -- never a clinical diagnosis (spec.md §1 Non-goals).
package bioage

import (
	"context"
	"time"

	"github.com/flomentum/vitalscore/internal/measurements"
	"github.com/flomentum/vitalscore/internal/model"
)

// Estimator computes a BiologicalAgeEstimate from the latest normalised
// measurement for each configured marker.
type Estimator struct {
	meas   *measurements.Store
	panel  []model.BioAgeMarker
}

// New constructs an Estimator over panel. An empty panel is valid; the
// estimate then degenerates to the chronological age with zero markers used.
func New(meas *measurements.Store, panel []model.BioAgeMarker) *Estimator {
	return &Estimator{meas: meas, panel: panel}
}

// Estimate produces a BiologicalAgeEstimate for user at chronologicalAge.
// Markers with no recorded measurement are skipped, not defaulted --
// absence of data must never masquerade as an optimal value.
func (e *Estimator) Estimate(ctx context.Context, user string, chronologicalAge float64, now time.Time) (model.BiologicalAgeEstimate, error) {
	est := model.BiologicalAgeEstimate{
		User:              user,
		ChronologicalAge:  chronologicalAge,
		MarkersConfigured: len(e.panel),
		GeneratedAt:       now,
	}

	deltaYears := 0.0
	for _, marker := range e.panel {
		latest, err := e.meas.GetLatestFor(ctx, user, marker.BiomarkerId)
		if err != nil {
			return model.BiologicalAgeEstimate{}, err
		}
		if latest == nil {
			continue
		}

		deviation := latest.ValueCanonical - marker.OptimalValue
		if !marker.HigherIsOlder {
			deviation = -deviation
		}
		contribution := deviation * marker.ScalePerUnit * marker.Weight
		deltaYears += contribution

		est.Contributions = append(est.Contributions, model.BioAgeMarkerContribution{
			BiomarkerId:    marker.BiomarkerId,
			ValueCanonical: latest.ValueCanonical,
			DeltaYears:     contribution,
		})
		est.MarkersUsed++
	}

	est.DeltaYears = deltaYears
	est.EstimatedAge = chronologicalAge + deltaYears
	return est, nil
}
