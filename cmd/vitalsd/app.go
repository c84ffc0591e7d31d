// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/aivendor"
	"github.com/flomentum/vitalscore/internal/analytics"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/baseline"
	"github.com/flomentum/vitalscore/internal/bioage"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/config"
	"github.com/flomentum/vitalscore/internal/correlation"
	"github.com/flomentum/vitalscore/internal/forecast"
	"github.com/flomentum/vitalscore/internal/httpapi"
	"github.com/flomentum/vitalscore/internal/insightcache"
	"github.com/flomentum/vitalscore/internal/insightgen"
	"github.com/flomentum/vitalscore/internal/labpipeline"
	"github.com/flomentum/vitalscore/internal/lifeevents"
	"github.com/flomentum/vitalscore/internal/measurements"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/objectstore"
	"github.com/flomentum/vitalscore/internal/scoring"
	"github.com/flomentum/vitalscore/internal/users"
	"github.com/flomentum/vitalscore/pkg/logging"
)

// app bundles every constructed collaborator so the serve,
// forecast-worker, and reload-catalog subcommands can each take only
// what they need instead of repeating the wiring.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	kv     *badgerkv.DB

	catalog      *catalog.Catalog
	catalogWatch *catalog.Watcher

	users          *users.Store
	measurements   *measurements.Store
	samples        *aggregation.SampleStore
	aggregator     *aggregation.Aggregator
	sleepProcessor *aggregation.SleepProcessor
	baselines      *baseline.Store
	baselineCalc   *baseline.Calculator
	events         *lifeevents.Store

	analyticsQueue *analytics.Store
	forecastStore  *forecast.Store

	objects  objectstore.Store
	extractor aivendor.Vendor
	generator aivendor.Vendor

	jobs     *labpipeline.JobStore
	pipeline *labpipeline.Pipeline

	insightCache *insightcache.Cache
	insightGen   *insightgen.Generator
	correlationScanner *correlation.Scanner
	correlationStore   *correlation.Store
	bioAge             *bioage.Estimator
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// buildApp wires every store and engine from the loaded config.Global,
// following the same composition order the teacher's services/orchestrator
// wires its collaborators in: storage first, domain engines over it,
// external vendors last.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Global
	logger := logging.New(logging.Config{Service: "vitalsd", Level: logging.LevelInfo})

	kv, err := badgerkv.Open(expandHome(cfg.StoreDir))
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	cat := catalog.New()

	a := &app{
		cfg:          cfg,
		logger:       logger,
		kv:           kv,
		catalog:      cat,
		users:        users.New(kv),
		measurements: measurements.New(kv, cat, cfg.DedupEpsilonFraction, logger),
		samples:      aggregation.NewSampleStore(kv),
		baselines:    baseline.NewStore(kv),
		events:       lifeevents.New(kv),
		forecastStore: forecast.NewStore(kv),
		jobs:          labpipeline.NewJobStore(kv),
		correlationStore: correlation.NewStore(kv),
	}

	a.baselineCalc = baseline.NewCalculator(a.samples, a.baselines, logger)
	a.aggregator = aggregation.NewAggregator(a.samples, a.recomputeTrigger, logger)
	a.sleepProcessor = aggregation.NewSleepProcessor(float64(cfg.SleepMinTotalMinutes))

	if cfg.AnalyticsURL != "" {
		queue, err := analytics.Open(cfg.AnalyticsURL, cfg.AnalyticsToken, cfg.AnalyticsOrg, cfg.AnalyticsBucket)
		if err != nil {
			logger.Warn("analytics queue unavailable, forecast recompute events will not be enqueued", "error", err)
		} else {
			a.analyticsQueue = queue
		}
	}

	if cfg.ObjectStoreBucket != "" {
		store, err := objectstore.NewGCSStore(ctx, "", cfg.ObjectStoreBucket, "")
		if err != nil {
			logger.Warn("object store unavailable, lab uploads will fail", "error", err)
		} else {
			a.objects = store
		}
	}

	if v, ok := cfg.Vendors["extractor"]; ok {
		a.extractor = newVendor("extractor", v)
	}
	if v, ok := cfg.Vendors["generator"]; ok {
		a.generator = newVendor("generator", v)
	} else {
		a.generator = a.extractor
	}

	if a.objects != nil && a.extractor != nil {
		a.pipeline = labpipeline.New(a.jobs, a.objects, a.extractor, a.measurements, logger)
	}

	a.insightCache = insightcache.New(kv, cfg.InsightsCacheTTL())
	if a.generator != nil {
		a.insightGen = insightgen.New(a.generator, logger)
	}

	panel := make([]model.BioAgeMarker, 0, len(cfg.BioAgePanel))
	for _, m := range cfg.BioAgePanel {
		panel = append(panel, model.BioAgeMarker{
			BiomarkerId: m.BiomarkerId, Weight: m.Weight, HigherIsOlder: m.HigherIsOlder,
			OptimalValue: m.OptimalValue, ScalePerUnit: m.ScalePerUnit,
		})
	}
	a.bioAge = bioage.New(a.measurements, panel)
	a.correlationScanner = correlation.New(defaultCorrelationRules(), cfg.InsightConfidenceThreshold)

	return a, nil
}

// recomputeTrigger enqueues a forecast recompute event whenever a day's
// aggregates change. Nil analyticsQueue (e.g. in a dev box without
// InfluxDB configured) degrades to a silent no-op rather than a panic;
// buildApp already logged a warning when the queue failed to open.
func (a *app) recomputeTrigger(ctx context.Context, user, localDate string) {
	if a.analyticsQueue == nil {
		return
	}
	date := localDate
	ev := model.RecomputeEvent{
		EventId:            "trigger-" + user + "-" + date,
		User:               user,
		Reason:             model.ReasonManualRequest,
		Priority:           1,
		QueuedAt:           time.Now().UTC(),
		RequestedLocalDate: &date,
	}
	if err := a.analyticsQueue.EnqueueRecompute(ctx, ev); err != nil {
		a.logger.Error("enqueue recompute event failed", "user", user, "error", err)
	}
}

func newVendor(role string, v config.VendorConfig) aivendor.Vendor {
	key, err := config.VendorAPIKey(role)
	apiKey := ""
	if err == nil {
		apiKey = string(key.Bytes())
		defer key.Destroy()
	}
	return aivendor.NewOpenAIVendor(apiKey, v.Model)
}

// httpDependencies assembles the HTTP layer's Dependencies, including the
// three ScoreCache instances it needs; kept separate from buildApp so the generic instantiation stays
// close to the one call site that needs it.
func (a *app) httpDependencies() *httpapi.Dependencies {
	return &httpapi.Dependencies{
		Catalog:      a.catalog,
		Measurements: a.measurements,
		Samples:      a.samples,
		Baselines:    a.baselines,
		Readiness:    scoring.NewScoreCache[model.ReadinessScore](a.kv, "readiness"),
		Sleep:        scoring.NewScoreCache[model.SleepScore](a.kv, "sleep"),
		Momentum:     scoring.NewScoreCache[model.MomentumScore](a.kv, "momentum"),
		Forecast:     a.forecastStore,
		Pipeline:     a.pipeline,
		Jobs:         a.jobs,
		InsightCache: a.insightCache,
		InsightGen:   a.insightGen,
		Correlation:  a.correlationStore,
		BioAge:       a.bioAge,
		Users:          a.users,
		Aggregator:     a.aggregator,
		SleepProcessor: a.sleepProcessor,
		Logger:         a.logger,

		ReadinessCalibrationDays: a.cfg.ReadinessCalibrationDays,
		BaselineWindowDays:       28,
	}
}

// forecastCycleInputs satisfies forecast.UserContext: it loads the last
// 120 days of daily feature rows (§4.7.a) and derives weigh-ins and the
// driver-rule signals from them. Protein intake isn't tracked by the
// daily aggregator, so the protein-gap driver simply never fires.
func (a *app) forecastCycleInputs(ctx context.Context, user string) (forecast.CycleInputs, error) {
	since := time.Now().AddDate(0, 0, -120).Format("2006-01-02")
	rows, err := a.samples.DailyRowsSince(ctx, user, since)
	if err != nil {
		return forecast.CycleInputs{}, err
	}

	var weighIns []forecast.WeighIn
	var stepsSum, exerciseSum float64
	var stepsN, exerciseN int
	cutoff := time.Now().AddDate(0, 0, -7)
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.LocalDate)
		if err != nil {
			continue
		}
		if row.WeightKg != nil {
			weighIns = append(weighIns, forecast.WeighIn{Date: date, WeightKg: *row.WeightKg})
		}
		if date.Before(cutoff) {
			continue
		}
		if row.StepsTotal != nil {
			stepsSum += *row.StepsTotal
			stepsN++
		}
		if row.ExerciseMinutes != nil {
			exerciseSum += *row.ExerciseMinutes
			exerciseN++
		}
	}
	sort.Slice(weighIns, func(i, j int) bool { return weighIns[i].Date.Before(weighIns[j].Date) })

	driver := forecast.DriverContext{
		StepsTarget: 8000,
	}
	if stepsN > 0 {
		driver.AvgStepsLast7d = stepsSum / float64(stepsN)
	}
	if exerciseN > 0 {
		driver.AvgExerciseMinLast7d = exerciseSum / float64(exerciseN)
	}

	return forecast.CycleInputs{WeighIns: weighIns, Driver: driver}, nil
}

func (a *app) Close() {
	if a.catalogWatch != nil {
		_ = a.catalogWatch.Close()
	}
	_ = a.kv.Close()
}
