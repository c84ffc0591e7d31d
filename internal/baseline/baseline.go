// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package baseline implements the Baseline Calculator (§4.6): rolling
// 14/28/90-day median, p25, p75 per metric, recomputed nightly per user
// at a local-timezone offset.
package baseline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/logging"

	"github.com/dgraph-io/badger/v4"
)

// MinSamplesRequired is the floor below which a window is flagged
// insufficient_data rather than reported with a noisy central tendency.
const MinSamplesRequired = 7

func baselineKey(user string, metric model.BaselineMetric, windowDays int) string {
	return fmt.Sprintf("baseline:%s:%s:%d", user, metric, windowDays)
}

// Store persists PersonalBaseline rows.
type Store struct {
	kv *badgerkv.DB
}

// NewStore constructs a baseline Store.
func NewStore(kv *badgerkv.DB) *Store { return &Store{kv: kv} }

// Put upserts a PersonalBaseline.
func (s *Store) Put(ctx context.Context, b model.PersonalBaseline) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, baselineKey(b.User, b.Metric, b.WindowDays), b)
	})
}

// Get loads a PersonalBaseline, returning ok=false if none exists yet.
func (s *Store) Get(ctx context.Context, user string, metric model.BaselineMetric, windowDays int) (model.PersonalBaseline, bool, error) {
	var b model.PersonalBaseline
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, baselineKey(user, metric, windowDays), &b)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return b, found, err
}

// Calculator derives PersonalBaseline rows from the Daily Aggregator's
// stored rows.
type Calculator struct {
	samples *aggregation.SampleStore
	store   *Store
	logger  *logging.Logger
}

// NewCalculator constructs a Calculator.
func NewCalculator(samples *aggregation.SampleStore, store *Store, logger *logging.Logger) *Calculator {
	return &Calculator{samples: samples, store: store, logger: logger}
}

// Recompute rebuilds every (metric, window) PersonalBaseline for user as
// of "now" (the Scheduler passes the user's current local time at the
// refresh hour), reading up to 90 trailing days
// of daily rows once and slicing per window in memory.
func (c *Calculator) Recompute(ctx context.Context, user string, now time.Time) error {
	maxWindow := 0
	for _, w := range model.BaselineWindowDays {
		if w > maxWindow {
			maxWindow = w
		}
	}
	since := now.AddDate(0, 0, -maxWindow).Format("2006-01-02")
	rows, err := c.samples.DailyRowsSince(ctx, user, since)
	if err != nil {
		return fmt.Errorf("load daily rows for baseline recompute: %w", err)
	}

	for _, metric := range []model.BaselineMetric{
		model.MetricRestingHR, model.MetricHRV, model.MetricRespiratoryRate, model.MetricSteps,
	} {
		values := extract(rows, metric)
		for _, windowDays := range model.BaselineWindowDays {
			cutoff := now.AddDate(0, 0, -windowDays).Format("2006-01-02")
			windowed := filterSince(rows, values, cutoff)
			b := compute(user, metric, windowDays, windowed, now)
			if err := c.store.Put(ctx, b); err != nil {
				return fmt.Errorf("persist baseline %s/%dd: %w", metric, windowDays, err)
			}
		}
	}
	if c.logger != nil {
		c.logger.Debug("baseline recompute complete", "user", user, "daily_rows", len(rows))
	}
	return nil
}

type dated struct {
	date  string
	value float64
}

func extract(rows []model.DailyMetricRow, metric model.BaselineMetric) []dated {
	var out []dated
	for _, r := range rows {
		var v *float64
		switch metric {
		case model.MetricRestingHR:
			v = r.RestingHR
		case model.MetricHRV:
			v = r.HRVMs
		case model.MetricRespiratoryRate:
			v = r.RespiratoryRate
		case model.MetricSteps:
			v = r.StepsTotal
		}
		if v != nil {
			out = append(out, dated{date: r.LocalDate, value: *v})
		}
	}
	return out
}

func filterSince(rows []model.DailyMetricRow, values []dated, cutoff string) []float64 {
	var out []float64
	for _, d := range values {
		if d.date >= cutoff {
			out = append(out, d.value)
		}
	}
	return out
}

func compute(user string, metric model.BaselineMetric, windowDays int, values []float64, now time.Time) model.PersonalBaseline {
	b := model.PersonalBaseline{
		User:        user,
		Metric:      metric,
		WindowDays:  windowDays,
		SampleCount: len(values),
		UpdatedAt:   now.UTC(),
	}
	if len(values) < MinSamplesRequired {
		b.InsufficientData = true
		return b
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	b.Median = percentile(sorted, 0.5)
	b.P25 = percentile(sorted, 0.25)
	b.P75 = percentile(sorted, 0.75)
	return b
}

// percentile uses linear interpolation between closest ranks, matching
// the conventional definition used for trailing clinical baselines.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
