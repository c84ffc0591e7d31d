// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics holds the process-wide Prometheus collectors for the
// health-signal pipeline: lab job throughput, forecast cycle duration,
// and insight cache hit rate, registered once against the default
// registry and exposed at /metrics by cmd/vitalsd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LabJobsTotal counts terminal lab upload job outcomes by status.
	LabJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitalscore",
		Subsystem: "labpipeline",
		Name:      "jobs_total",
		Help:      "Lab upload jobs reaching a terminal status, by status.",
	}, []string{"status"})

	// ForecastCycleDuration observes how long one forecast-worker drain
	// cycle takes, across all users processed in that cycle.
	ForecastCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vitalscore",
		Subsystem: "forecast",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of one forecast worker recompute cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// ForecastUsersProcessed counts users whose forecast was recomputed
	// per cycle.
	ForecastUsersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vitalscore",
		Subsystem: "forecast",
		Name:      "users_processed_total",
		Help:      "Users whose forecast summary was recomputed.",
	})

	// InsightCacheHits counts insight cache lookups by outcome: fresh,
	// stale (fallback served), or miss.
	InsightCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitalscore",
		Subsystem: "insightcache",
		Name:      "lookups_total",
		Help:      "Insight cache lookups, by outcome.",
	}, []string{"outcome"})

	// NormalizationFailures counts normalisation engine failures by
	// error kind, e.g. BiomarkerNotFound, UnitConversionError.
	NormalizationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitalscore",
		Subsystem: "normalize",
		Name:      "failures_total",
		Help:      "Normalisation engine failures, by error kind.",
	}, []string{"kind"})

	// ScoringCacheFreshness counts score cache reads by whether the
	// cached value was fresh enough to serve (§4.5 freshness invariant).
	ScoringCacheFreshness = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitalscore",
		Subsystem: "scoring",
		Name:      "cache_reads_total",
		Help:      "Score cache reads, by freshness outcome (fresh, stale_recompute).",
	}, []string{"kind", "outcome"})
)
