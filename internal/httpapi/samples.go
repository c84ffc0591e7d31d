// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/model"
)

type ingestSamplesRequest struct {
	User     string            `json:"user" binding:"required"`
	Timezone string            `json:"timezone" binding:"required"`
	Samples  []model.RawSample `json:"samples" binding:"required"`
}

type ingestSleepSamplesRequest struct {
	User      string                      `json:"user" binding:"required"`
	SleepDate string                      `json:"sleepDate" binding:"required"`
	Timezone  string                      `json:"timezone" binding:"required"`
	Samples   []model.SleepIntervalSample `json:"samples" binding:"required"`
}

// RegisterSampleRoutes wires the wearable sample and sleep-interval
// ingestion endpoints. It lives in its own registrar (rather than
// router.go's group) because it depends on the Aggregator, which
// cmd/vitalsd constructs separately so it can pass a RecomputeTrigger
// closing over the analytics queue.
func RegisterSampleRoutes(rg *gin.RouterGroup, aggregator *aggregation.Aggregator, deps *Dependencies) {
	rg.POST("/samples", ingestSamplesHandler(aggregator, deps))
	rg.POST("/sleep-samples", ingestSleepSamplesHandler(deps))
}

func ingestSamplesHandler(aggregator *aggregation.Aggregator, deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestSamplesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "invalid request body", err))
			return
		}
		touched, err := aggregator.IngestSamples(c.Request.Context(), req.User, req.Timezone, req.Samples)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if deps != nil && deps.Users != nil {
			_ = deps.Users.Upsert(c.Request.Context(), req.User, req.Timezone)
		}
		c.JSON(http.StatusAccepted, gin.H{"touchedDates": touched})
	}
}

// ingestSleepSamplesHandler runs the §4.4 Sleep Sample Processor over a
// batch of raw stage intervals and persists the derived SleepNight.
// A night under SLEEP_MIN_TOTAL_MINUTES surfaces as 422 InsufficientData
// rather than being silently dropped or half-written.
func ingestSleepSamplesHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestSleepSamplesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "invalid request body", err))
			return
		}

		night, err := deps.SleepProcessor.Process(req.User, req.SleepDate, req.Timezone, req.Samples)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		if err := deps.Samples.PutSleepNight(c.Request.Context(), night); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, night)
	}
}
