// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forecast

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/flomentum/vitalscore/internal/analytics"
	"github.com/flomentum/vitalscore/internal/metrics"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/pkg/logging"
)

var tracer = otel.Tracer("vitalscore.forecast")

// MinTrendDaysToUpdateModel gates §4.7.m: ModelState residual re-training
// only happens once at least this many days of trend data exist.
const MinTrendDaysToUpdateModel = 14

// Worker drains the recompute queue at a fixed poll interval and runs
// one forecast cycle per user. A single isProcessing guard prevents two
// cycles from overlapping if a cycle runs long.
type Worker struct {
	queue       *analytics.Store
	store       *Store
	horizonDays int
	debounce    time.Duration
	batchSize   int
	logger      *logging.Logger
	cycleInputs UserContext

	isProcessing atomic.Bool
}

// NewWorker constructs a forecast Worker.
func NewWorker(queue *analytics.Store, store *Store, horizonDays, batchSize int, debounce time.Duration, logger *logging.Logger) *Worker {
	return &Worker{queue: queue, store: store, horizonDays: horizonDays, debounce: debounce, batchSize: batchSize, logger: logger}
}

// Run polls at interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle executes one drain-and-process pass. Safe to call directly
// from tests without a ticker.
func (w *Worker) RunCycle(ctx context.Context) {
	if !w.isProcessing.CompareAndSwap(false, true) {
		return
	}
	defer w.isProcessing.Store(false)

	ctx, span := tracer.Start(ctx, "forecast.RunCycle")
	defer span.End()
	cycleStart := time.Now()
	defer func() { metrics.ForecastCycleDuration.Observe(time.Since(cycleStart).Seconds()) }()

	cutoff := time.Now().Add(-w.debounce)
	events, err := w.queue.DrainOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		if w.logger != nil {
			w.logger.Error("forecast worker: drain queue", "error", err)
		}
		return
	}
	if len(events) == 0 {
		return
	}

	perUser := coalesce(events)
	users := make([]string, 0, len(perUser))
	for user := range perUser {
		users = append(users, user)
	}
	sort.Strings(users)

	for _, user := range users {
		if err := w.processUser(ctx, user); err != nil {
			if w.logger != nil {
				w.logger.Error("forecast cycle failed", "user", user, "error", err)
			}
			continue
		}
		metrics.ForecastUsersProcessed.Inc()
		_ = w.queue.DeleteProcessedBefore(ctx, user, time.Now().Add(-1*time.Minute))
	}
}

// coalesce keeps only the highest-priority event per user (§4.7 step 2).
func coalesce(events []model.RecomputeEvent) map[string]model.RecomputeEvent {
	best := map[string]model.RecomputeEvent{}
	for _, ev := range events {
		cur, ok := best[ev.User]
		if !ok || ev.Priority > cur.Priority {
			best[ev.User] = ev
		}
	}
	return best
}

// UserContext is the per-user data a forecast cycle needs beyond what
// this package stores itself: weigh-ins and the driver/simulator signals
// derived from the Daily Aggregator's rows. Supplied by the caller
// (typically cmd/vitalsd) so this package stays free of a dependency on
// the measurement/aggregation stores' concrete types.
type UserContext func(ctx context.Context, user string) (CycleInputs, error)

// CycleInputs is everything processUser needs for one user's cycle.
type CycleInputs struct {
	WeighIns   []WeighIn
	Driver     DriverContext
	Levers     []Lever
}

// processUser runs §4.7 steps 3.a-n for one user. Cycle inputs come from
// whatever fetcher was registered via SetCycleInputsFn.
func (w *Worker) processUser(ctx context.Context, user string) error {
	fetch := w.cycleInputs
	if fetch == nil {
		return nil
	}
	inputs, err := fetch(ctx, user)
	if err != nil {
		return err
	}

	state, _, err := w.store.GetModelState(ctx, user)
	if err != nil {
		return err
	}
	goal, hasGoal, err := w.store.GetWeightGoal(ctx, user)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var current, sevenDayAvg float64
	var lastWeighIn time.Time
	weighInsLast7 := 0
	if len(inputs.WeighIns) > 0 {
		current = inputs.WeighIns[len(inputs.WeighIns)-1].WeightKg
		lastWeighIn = inputs.WeighIns[len(inputs.WeighIns)-1].Date
		var sum float64
		var count int
		for _, wi := range inputs.WeighIns {
			if now.Sub(wi.Date) <= 7*24*time.Hour {
				sum += wi.WeightKg
				count++
				weighInsLast7++
			}
		}
		if count > 0 {
			sevenDayAvg = sum / float64(count)
		}
	}

	staleness := 999.0
	if !lastWeighIn.IsZero() {
		staleness = now.Sub(lastWeighIn).Hours() / 24
	}
	confidence := Confidence(weighInsLast7, staleness)
	slope := TrendSlope(inputs.WeighIns)
	if slope == 0 {
		slope = state.BaselineWeightTrendSlope
	}

	sigma := state.WaterNoiseSigma
	if sigma == 0 {
		sigma = 0.3
	}

	series := ProjectSeries(current, slope, sigma, confidence, w.horizonDays)

	var eta *float64
	var statusChip model.StatusChip
	var progressPct float64
	if hasGoal {
		eta = ETADays(current, goal.TargetWeightKg, slope, goal.Type)
		hasRecentWeight := !lastWeighIn.IsZero() && staleness <= 7
		statusChip = StatusChip(hasRecentWeight, hasGoal, eta, goal.TargetDate, now, slope, goal.Type)
		totalDelta := goal.TargetWeightKg - goal.StartWeightKg
		if totalDelta != 0 {
			progressPct = clampPct((current - goal.StartWeightKg) / totalDelta * 100)
		}
	} else {
		statusChip = model.StatusNeedsData
	}

	levers := inputs.Levers
	if len(levers) == 0 {
		levers = DefaultLevers
	}
	target := current
	goalType := model.GoalMaintain
	if hasGoal {
		target = goal.TargetWeightKg
		goalType = goal.Type
	}
	simResults := Simulate(levers, current, slope, target, sigma, confidence, w.horizonDays, goalType)

	summary := model.ForecastSummary{
		User:               user,
		GeneratedAt:        now,
		CurrentWeightKg:    current,
		DeltaVs7dAvgKg:     current - sevenDayAvg,
		ProgressPct:        progressPct,
		Confidence:         confidence,
		TrendSlopeKgPerDay: slope,
		ETADays:            eta,
		StatusChip:         statusChip,
		Series:             series,
		Drivers:            Drivers(inputs.Driver),
		SimulatorResults:   simResults,
	}
	if err := w.store.PutSummary(ctx, summary); err != nil {
		return err
	}

	if len(inputs.WeighIns) >= MinTrendDaysToUpdateModel {
		state.User = user
		state.BaselineWeightTrendSlope = slope
		state.WaterNoiseSigma = residualSigma(inputs.WeighIns, slope)
		state.LastTrainedLocalDate = now.Format("2006-01-02")
		if err := w.store.PutModelState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// SetCycleInputsFn registers the fetcher the process wiring this worker
// together uses to supply per-user cycle inputs.
func (w *Worker) SetCycleInputsFn(fn UserContext) { w.cycleInputs = fn }

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// residualSigma is the standard deviation of actual weigh-ins from the
// slope-predicted trend line, feeding back into ModelState.WaterNoiseSigma.
func residualSigma(weighIns []WeighIn, slope float64) float64 {
	if len(weighIns) < 2 {
		return 0.3
	}
	base := weighIns[0].WeightKg
	baseTime := weighIns[0].Date
	var sumSq float64
	for _, wi := range weighIns {
		days := wi.Date.Sub(baseTime).Hours() / 24
		predicted := base + slope*days
		residual := wi.WeightKg - predicted
		sumSq += residual * residual
	}
	variance := sumSq / float64(len(weighIns))
	if variance <= 0 {
		return 0.1
	}
	return math.Sqrt(variance)
}
