// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics is the InfluxDB-backed time-series store behind the
// Forecast Engine (§4.7): daily feature rows and the recompute queue
// both live here as two Influx measurements in the same bucket, mirroring
// how the teacher's data_fetcher service writes stock_prices points and
// its orchestrator handlers query them back out with Flux.
package analytics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/validation"
)

const (
	measurementDailyFeatures = "daily_features"
	measurementRecomputeQueue = "recompute_queue"
)

// Store wraps an InfluxDB client scoped to one bucket/org.
type Store struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
	org    string
}

// Open connects to InfluxDB at url with token, scoped to bucket/org.
func Open(url, token, org, bucket string) (*Store, error) {
	client := influxdb2.NewClient(url, token)
	return &Store{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		query:  client.QueryAPI(org),
		bucket: bucket,
		org:    org,
	}, nil
}

// Close releases the underlying HTTP client.
func (s *Store) Close() { s.client.Close() }

// WriteDailyFeatureRow appends one point per DailyMetricRow. Influx keeps
// every write as a new point rather than upserting in place, so readers
// always take the most recent point per (user, local_date) tag pair.
func (s *Store) WriteDailyFeatureRow(ctx context.Context, row model.DailyMetricRow) error {
	fields := map[string]interface{}{}
	addIfSet(fields, "steps_total", row.StepsTotal)
	addIfSet(fields, "active_energy_kcal", row.ActiveEnergyKcal)
	addIfSet(fields, "exercise_minutes", row.ExerciseMinutes)
	addIfSet(fields, "stand_hours", row.StandHours)
	addIfSet(fields, "resting_hr", row.RestingHR)
	addIfSet(fields, "hrv_ms", row.HRVMs)
	addIfSet(fields, "respiratory_rate", row.RespiratoryRate)
	addIfSet(fields, "oxygen_saturation_pct", row.OxygenSaturationPct)
	addIfSet(fields, "sleep_hours", row.SleepHours)
	addIfSet(fields, "weight_kg", row.WeightKg)
	addIfSet(fields, "body_fat_pct", row.BodyFatPct)
	addIfSet(fields, "bmi", row.BMI)
	if len(fields) == 0 {
		return nil
	}

	p := influxdb2.NewPoint(
		measurementDailyFeatures,
		map[string]string{"user": row.User, "local_date": row.LocalDate},
		fields,
		row.UpdatedAt,
	)
	if err := s.write.WritePoint(ctx, p); err != nil {
		return apierr.Wrap(apierr.KindExternalStoreError, "write daily feature row", err)
	}
	return nil
}

func addIfSet(fields map[string]interface{}, name string, v *float64) {
	if v != nil {
		fields[name] = *v
	}
}

// FeatureField is one field from a daily_features point, keyed by the
// name it was written under in WriteDailyFeatureRow.
type FeatureField struct {
	LocalDate string
	Field     string
	Value     float64
	Time      time.Time
}

// QueryDailyFeatures returns every field written for user over the
// trailing window. The user tag is validated before interpolation into
// the Flux query string to prevent Flux injection via a crafted id.
func (s *Store) QueryDailyFeatures(ctx context.Context, user string, windowDays int) ([]FeatureField, error) {
	if err := validation.ValidateUserId(user); err != nil {
		return nil, apierr.Wrap(apierr.KindValidationError, "invalid user id", err)
	}

	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.user == "%s")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, windowDays, measurementDailyFeatures, user)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindExternalStoreError, "query daily features", err)
	}
	defer result.Close()

	var out []FeatureField
	for result.Next() {
		rec := result.Record()
		value, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		localDate, _ := rec.ValueByKey("local_date").(string)
		out = append(out, FeatureField{
			LocalDate: localDate,
			Field:     rec.Field(),
			Value:     value,
			Time:      rec.Time(),
		})
	}
	if result.Err() != nil {
		return nil, apierr.Wrap(apierr.KindExternalStoreError, "read daily features result", result.Err())
	}
	return out, nil
}

// EnqueueRecompute writes one recompute event as a point tagged by user,
// event_id and reason and timestamped QueuedAt. A re-enqueued event only
// overwrites the earlier point when all three tags and QueuedAt match;
// otherwise it is stored as a separate point.
func (s *Store) EnqueueRecompute(ctx context.Context, ev model.RecomputeEvent) error {
	fields := map[string]interface{}{
		"priority": ev.Priority,
	}
	if ev.RequestedLocalDate != nil {
		fields["requested_local_date"] = *ev.RequestedLocalDate
	}
	p := influxdb2.NewPoint(
		measurementRecomputeQueue,
		map[string]string{"user": ev.User, "event_id": ev.EventId, "reason": string(ev.Reason)},
		fields,
		ev.QueuedAt,
	)
	if err := s.write.WritePoint(ctx, p); err != nil {
		return apierr.Wrap(apierr.KindExternalStoreError, "enqueue recompute event", err)
	}
	return nil
}

// DrainOlderThan returns queued events written before cutoff, implementing
// the §4.7 debounce window (only events older than debounce_window are
// eligible for a cycle, so rapid bursts coalesce before being acted on).
func (s *Store) DrainOlderThan(ctx context.Context, cutoff time.Time, batchSize int) ([]model.RecomputeEvent, error) {
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d, stop: time(v: %q))
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r._field == "priority")
		  |> sort(columns: ["_time"], desc: false)
		  |> limit(n: %d)
	`, s.bucket, cutoff.UTC().Format(time.RFC3339Nano), measurementRecomputeQueue, batchSize)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindExternalStoreError, "drain recompute queue", err)
	}
	defer result.Close()

	var out []model.RecomputeEvent
	for result.Next() {
		rec := result.Record()
		user, _ := rec.ValueByKey("user").(string)
		eventID, _ := rec.ValueByKey("event_id").(string)
		reason, _ := rec.ValueByKey("reason").(string)
		priority, _ := rec.Value().(int64)
		out = append(out, model.RecomputeEvent{
			EventId:  eventID,
			User:     user,
			Reason:   model.RecomputeReason(reason),
			Priority: int(priority),
			QueuedAt: rec.Time(),
		})
	}
	if result.Err() != nil {
		return nil, apierr.Wrap(apierr.KindExternalStoreError, "read recompute queue result", result.Err())
	}
	return out, nil
}

// DeleteProcessedBefore removes queue entries for user older than cutoff,
// per §4.7 step n ("delete processed queue entries older than 1 minute
// for this user").
func (s *Store) DeleteProcessedBefore(ctx context.Context, user string, cutoff time.Time) error {
	if err := validation.ValidateUserId(user); err != nil {
		return apierr.Wrap(apierr.KindValidationError, "invalid user id", err)
	}
	deleteAPI := s.client.DeleteAPI()
	predicate := fmt.Sprintf(`_measurement="%s" AND user="%s"`, measurementRecomputeQueue, user)
	start := time.Unix(0, 0)
	if err := deleteAPI.DeleteWithName(ctx, s.org, s.bucket, start, cutoff, predicate); err != nil {
		return apierr.Wrap(apierr.KindExternalStoreError, "delete processed recompute events", err)
	}
	return nil
}
