// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package config provides configuration types and loading for the vitalscore
health-signal processing pipeline.

# Overview

This package defines the full configuration schema: forecast worker
cadence, batching and debounce, insight cache TTL, scoring calibration
windows, dedup tolerance, baseline refresh timing, and per-vendor AI
credentials. Vendor API keys are never held as plain strings: they are
sealed in a memguard.Enclave so a core dump or an accidental log line
never leaks one.

# Configuration File

The configuration is stored at ~/.vitalscore/vitalscore.yaml and is created
automatically on first run with sensible defaults.
*/
package config

import "time"

// VendorKind selects which AI vendor backend a VendorConfig describes.
type VendorKind string

const (
	VendorAnthropic VendorKind = "anthropic"
	VendorOpenAI    VendorKind = "openai"
	VendorLocal     VendorKind = "local"
)

// VendorConfig is one configured AI vendor endpoint. APIKey is loaded into
// a sealed enclave immediately after YAML decode (see Load) and the plain
// string is scrubbed; Config never holds a live credential.
type VendorConfig struct {
	Kind    VendorKind `yaml:"kind"`
	BaseURL string     `yaml:"base_url"`
	Model   string     `yaml:"model"`
	APIKey  string     `yaml:"api_key"`
}

// Config is the top-level process configuration.
type Config struct {
	// PollIntervalMS is how often the forecast worker drains the
	// recompute queue. Default: 10000.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// BatchSize is the max recompute events drained per forecast cycle.
	// Default: 50.
	BatchSize int `yaml:"batch_size"`

	// DebounceWindowSeconds coalesces bursts of recompute events per user.
	// Default: 120.
	DebounceWindowSeconds int `yaml:"debounce_window_seconds"`

	// HorizonDays is the forecast projection length. Default: 42.
	HorizonDays int `yaml:"horizon_days"`

	// InsightsCacheTTLDays is the default TTL for cached insight payloads.
	// Default: 30.
	InsightsCacheTTLDays int `yaml:"insights_cache_ttl_days"`

	// ReadinessCalibrationDays is the baseline window below which a
	// readiness score is marked is_calibrating. Default: 14.
	ReadinessCalibrationDays int `yaml:"readiness_calibration_days"`

	// SleepMinTotalMinutes below which a sleep night is rejected as
	// insufficient. Default: 180.
	SleepMinTotalMinutes int `yaml:"sleep_min_total_minutes"`

	// DedupEpsilonFraction is the relative tolerance for measurement
	// deduplication: two values within this fraction of each other are
	// treated as the same observation. Default: 0.005.
	DedupEpsilonFraction float64 `yaml:"dedup_epsilon_fraction"`

	// BaselineRefreshLocalHour is the local-time hour the nightly baseline
	// job runs at, per user timezone. Default: 3.
	BaselineRefreshLocalHour int `yaml:"baseline_refresh_local_hour"`

	// InsightConfidenceThreshold is the minimum confidence_score a
	// correlation-scan candidate needs to be persisted. Default: 0.6.
	InsightConfidenceThreshold float64 `yaml:"insight_confidence_threshold"`

	// Vendors maps a logical role ("extractor", "generator") to the
	// vendor endpoint used for it, so the extractor and the insight
	// generator can point at different models/vendors.
	Vendors map[string]VendorConfig `yaml:"vendors"`

	// ObjectStoreBucket is the bucket lab PDFs are persisted to.
	ObjectStoreBucket string `yaml:"object_store_bucket"`

	// AnalyticsBucket/Org are the InfluxDB bucket/org holding daily
	// feature rows and the forecast recompute queue.
	AnalyticsBucket string `yaml:"analytics_bucket"`
	AnalyticsOrg    string `yaml:"analytics_org"`
	AnalyticsURL    string `yaml:"analytics_url"`
	AnalyticsToken  string `yaml:"analytics_token"`

	// StoreDir is the directory the embedded badger store (sessions,
	// measurements, lab jobs, baselines, score cache) is rooted at.
	StoreDir string `yaml:"store_dir"`

	// CatalogPath is the on-disk YAML file the Reference Catalog loads
	// at startup and hot-reloads on every write (§9 "Shared singletons").
	CatalogPath string `yaml:"catalog_path"`

	// WeaviateURL, when set, enables semantic near-duplicate search over
	// insight pattern claims.
	WeaviateURL string `yaml:"weaviate_url"`

	// HTTPPort is the port cmd/vitalsd's serve command binds to.
	// Default: 8090.
	HTTPPort int `yaml:"http_port"`

	// CorrelationWindowDays is how many days of daily feature rows the
	// correlation scanner looks back over on each pass. Default: 30.
	CorrelationWindowDays int `yaml:"correlation_window_days"`

	// CorrelationMinRescanHours gates re-scanning a single user's
	// patterns to at most once per this many hours. Default: 24.
	CorrelationMinRescanHours int `yaml:"correlation_min_rescan_hours"`

	// BioAgePanel is the configurable marker panel the biological-age
	// estimator weighs. Empty by default; operators populate it per
	// deployment since clinically-sound weights are not this package's
	// concern to hardcode.
	BioAgePanel []BioAgeMarkerConfig `yaml:"bio_age_panel"`
}

// BioAgeMarkerConfig is the YAML shape of one biological-age panel entry.
type BioAgeMarkerConfig struct {
	BiomarkerId   string  `yaml:"biomarker_id"`
	Weight        float64 `yaml:"weight"`
	HigherIsOlder bool    `yaml:"higher_is_older"`
	OptimalValue  float64 `yaml:"optimal_value"`
	ScalePerUnit  float64 `yaml:"scale_per_unit"`
}

// DefaultConfig returns the configuration written to a fresh
// ~/.vitalscore/vitalscore.yaml on first run.
func DefaultConfig() Config {
	return Config{
		PollIntervalMS:             10000,
		BatchSize:                  50,
		DebounceWindowSeconds:      120,
		HorizonDays:                42,
		InsightsCacheTTLDays:       30,
		ReadinessCalibrationDays:   14,
		SleepMinTotalMinutes:       180,
		DedupEpsilonFraction:       0.005,
		BaselineRefreshLocalHour:   3,
		InsightConfidenceThreshold: 0.6,
		Vendors:                    map[string]VendorConfig{},
		ObjectStoreBucket:          "vitalscore-lab-uploads",
		AnalyticsBucket:            "vitalscore",
		AnalyticsOrg:               "vitalscore",
		StoreDir:                   "~/.vitalscore/store",
		CatalogPath:                "~/.vitalscore/catalog.yaml",
		HTTPPort:                   8090,
		CorrelationWindowDays:      30,
		CorrelationMinRescanHours:  24,
	}
}

// PollInterval returns PollIntervalMS as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// DebounceWindow returns DebounceWindowSeconds as a time.Duration.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindowSeconds) * time.Second
}

// InsightsCacheTTL returns InsightsCacheTTLDays as a time.Duration.
func (c Config) InsightsCacheTTL() time.Duration {
	return time.Duration(c.InsightsCacheTTLDays) * 24 * time.Hour
}
