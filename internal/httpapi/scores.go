// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/scoring"
)

func registerScoreRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.GET("/scores/readiness", readinessHandler(deps))
	rg.GET("/scores/sleep", sleepHandler(deps))
	rg.GET("/scores/momentum", momentumHandler(deps))
}

func localDateParam(c *gin.Context) string {
	if d := c.Query("date"); d != "" {
		return d
	}
	return time.Now().UTC().Format("2006-01-02")
}

func loadBaselines(c *gin.Context, deps *Dependencies, user string) (map[model.BaselineMetric]model.PersonalBaseline, error) {
	window := deps.BaselineWindowDays
	if window == 0 {
		window = 28
	}
	metrics := []model.BaselineMetric{model.MetricRestingHR, model.MetricHRV, model.MetricRespiratoryRate, model.MetricSteps}
	out := make(map[model.BaselineMetric]model.PersonalBaseline, len(metrics))
	for _, m := range metrics {
		b, found, err := deps.Baselines.Get(c.Request.Context(), user, m, window)
		if err != nil {
			return nil, err
		}
		if found {
			out[m] = b
		}
	}
	return out, nil
}

func readinessHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		localDate := localDateParam(c)

		today, found, err := deps.Samples.GetDailyRow(c.Request.Context(), user, localDate)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if !found {
			writeAPIError(c, apierr.New(apierr.KindInsufficientData, "no daily metrics recorded for "+localDate).
				WithDetail(apierr.MissingData{Fields: []string{"daily_metric_row"}, Reason: "no sync for this date"}))
			return
		}

		night, _, err := deps.Samples.GetSleepNight(c.Request.Context(), user, localDate)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		// The Readiness score's SleepScore sub-score is derived from
		// night, so the cache entry is only fresh if neither the daily
		// row nor the sleep night have changed since it was generated
		// -- a sleep-night write never touches the daily row's
		// UpdatedAt (internal/aggregation/store.go), so both must be
		// folded into the freshness watermark.
		latestInputUpdate := today.UpdatedAt
		if night.UpdatedAt.After(latestInputUpdate) {
			latestInputUpdate = night.UpdatedAt
		}

		if cached, ok, err := deps.Readiness.GetIfFresh(c.Request.Context(), user, localDate, latestInputUpdate); err != nil {
			writeAPIError(c, err)
			return
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		baselines, err := loadBaselines(c, deps, user)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		sleepResult := scoring.Sleep(scoring.SleepInputs{Night: night, Baselines: baselines}, time.Now())

		now := time.Now().UTC()
		score := scoring.Readiness(scoring.ReadinessInputs{
			Today:      today,
			SleepScore: sleepResult.Score,
			Baselines:  baselines,
		}, deps.ReadinessCalibrationDays, now)
		score.InputsUpdatedAt = latestInputUpdate

		if err := deps.Readiness.Put(c.Request.Context(), user, localDate, score, now, latestInputUpdate); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, score)
	}
}

func sleepHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		localDate := localDateParam(c)
		ageYears := 35
		if raw := c.Query("ageYears"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				ageYears = v
			}
		}

		night, found, err := deps.Samples.GetSleepNight(c.Request.Context(), user, localDate)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if !found {
			writeAPIError(c, apierr.New(apierr.KindInsufficientData, "no sleep night recorded for "+localDate))
			return
		}

		if cached, ok, err := deps.Sleep.GetIfFresh(c.Request.Context(), user, localDate, night.UpdatedAt); err != nil {
			writeAPIError(c, err)
			return
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		baselines, err := loadBaselines(c, deps, user)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		now := time.Now().UTC()
		score := scoring.Sleep(scoring.SleepInputs{Night: night, AgeYears: ageYears, Baselines: baselines}, now)
		score.InputsUpdatedAt = night.UpdatedAt

		if err := deps.Sleep.Put(c.Request.Context(), user, localDate, score, now, night.UpdatedAt); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, score)
	}
}

func momentumHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		localDate := localDateParam(c)

		today, found, err := deps.Samples.GetDailyRow(c.Request.Context(), user, localDate)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if !found {
			writeAPIError(c, apierr.New(apierr.KindInsufficientData, "no daily metrics recorded for "+localDate))
			return
		}

		if cached, ok, err := deps.Momentum.GetIfFresh(c.Request.Context(), user, localDate, today.UpdatedAt); err != nil {
			writeAPIError(c, err)
			return
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		baselines, err := loadBaselines(c, deps, user)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		sleepHours := 0.0
		if today.SleepHours != nil {
			sleepHours = *today.SleepHours
		}

		now := time.Now().UTC()
		score := scoring.Momentum(scoring.MomentumInputs{
			Today:       today,
			Baselines:   baselines,
			SleepHours:  sleepHours,
			StepsTarget: 10000,
		}, now)
		score.InputsUpdatedAt = today.UpdatedAt

		if err := deps.Momentum.Put(c.Request.Context(), user, localDate, score, now, today.UpdatedAt); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, score)
	}
}
