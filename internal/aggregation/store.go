// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aggregation implements the Daily Aggregator and Sleep Sample
// Processor (§4.4): reducing raw wearable samples and sleep stage
// intervals into one row per (user, local_date) / (user, sleep_date).
// Idempotence under replay comes from keying every raw sample by its
// client-assigned UUID and re-deriving the aggregate from the full
// stored set on every ingest, rather than incrementally summing -- a
// resent batch can never double-count.
package aggregation

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func rawSampleKey(user, localDate, uuid string) string {
	return "rawsample:" + user + ":" + localDate + ":" + uuid
}
func dailyRowKey(user, localDate string) string { return "dailyrow:" + user + ":" + localDate }
func sleepIntervalKey(user, sleepDate, uuid string) string {
	return "sleepinterval:" + user + ":" + sleepDate + ":" + uuid
}
func sleepNightKey(user, sleepDate string) string { return "sleepnight:" + user + ":" + sleepDate }

// SampleStore persists raw wearable samples, sleep interval samples, and
// the derived rows built from them.
type SampleStore struct {
	kv *badgerkv.DB
}

// NewSampleStore constructs a SampleStore.
func NewSampleStore(kv *badgerkv.DB) *SampleStore { return &SampleStore{kv: kv} }

// PutSamples upserts each sample under its (user, local_date, uuid) key,
// replacing a previously stored sample with the same uuid in place.
func (s *SampleStore) PutSamples(ctx context.Context, user, localDate string, samples []model.RawSample) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, sample := range samples {
			if err := badgerkv.PutJSON(txn, rawSampleKey(user, localDate, sample.UUID), sample); err != nil {
				return err
			}
		}
		return nil
	})
}

// SamplesForDay returns every stored raw sample for (user, local_date).
func (s *SampleStore) SamplesForDay(ctx context.Context, user, localDate string) ([]model.RawSample, error) {
	var out []model.RawSample
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "rawsample:"+user+":"+localDate+":", func(_ string, get func(any) error) error {
			var sample model.RawSample
			if err := get(&sample); err != nil {
				return err
			}
			out = append(out, sample)
			return nil
		})
	})
	return out, err
}

// PutDailyRow upserts the derived DailyMetricRow.
func (s *SampleStore) PutDailyRow(ctx context.Context, row model.DailyMetricRow) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, dailyRowKey(row.User, row.LocalDate), row)
	})
}

// DailyRowsSince returns every stored DailyMetricRow for user with
// LocalDate >= sinceDate, in no particular order. Callers needing a
// trailing window pass the window's start date.
func (s *SampleStore) DailyRowsSince(ctx context.Context, user, sinceDate string) ([]model.DailyMetricRow, error) {
	var out []model.DailyMetricRow
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "dailyrow:"+user+":", func(_ string, get func(any) error) error {
			var row model.DailyMetricRow
			if err := get(&row); err != nil {
				return err
			}
			if row.LocalDate >= sinceDate {
				out = append(out, row)
			}
			return nil
		})
	})
	return out, err
}

// GetDailyRow loads a DailyMetricRow, returning ok=false if none exists yet.
func (s *SampleStore) GetDailyRow(ctx context.Context, user, localDate string) (model.DailyMetricRow, bool, error) {
	var row model.DailyMetricRow
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, dailyRowKey(user, localDate), &row)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return row, found, err
}

// PutSleepIntervals upserts sleep stage intervals by uuid.
func (s *SampleStore) PutSleepIntervals(ctx context.Context, user, sleepDate string, intervals []model.SleepIntervalSample) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, iv := range intervals {
			if err := badgerkv.PutJSON(txn, sleepIntervalKey(user, sleepDate, iv.UUID), iv); err != nil {
				return err
			}
		}
		return nil
	})
}

// SleepIntervalsForNight returns every stored interval sample for (user, sleep_date).
func (s *SampleStore) SleepIntervalsForNight(ctx context.Context, user, sleepDate string) ([]model.SleepIntervalSample, error) {
	var out []model.SleepIntervalSample
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "sleepinterval:"+user+":"+sleepDate+":", func(_ string, get func(any) error) error {
			var iv model.SleepIntervalSample
			if err := get(&iv); err != nil {
				return err
			}
			out = append(out, iv)
			return nil
		})
	})
	return out, err
}

// PutSleepNight upserts the derived SleepNight.
func (s *SampleStore) PutSleepNight(ctx context.Context, night model.SleepNight) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, sleepNightKey(night.User, night.SleepDate), night)
	})
}

// GetSleepNight loads a SleepNight, returning ok=false if none exists yet.
func (s *SampleStore) GetSleepNight(ctx context.Context, user, sleepDate string) (model.SleepNight, bool, error) {
	var night model.SleepNight
	var found bool
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, sleepNightKey(user, sleepDate), &night)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return night, found, err
}
