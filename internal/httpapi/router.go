// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpapi wires the health-signal pipeline's engines onto a gin
// router, the same composition root shape services/orchestrator's
// router uses: a Dependencies bag passed into per-resource handler
// constructors, otelgin tracing middleware, and a shared error-to-status
// translator keyed off internal/apierr.Kind.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flomentum/vitalscore/internal/aggregation"
	"github.com/flomentum/vitalscore/internal/baseline"
	"github.com/flomentum/vitalscore/internal/bioage"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/correlation"
	"github.com/flomentum/vitalscore/internal/forecast"
	"github.com/flomentum/vitalscore/internal/insightcache"
	"github.com/flomentum/vitalscore/internal/insightgen"
	"github.com/flomentum/vitalscore/internal/labpipeline"
	"github.com/flomentum/vitalscore/internal/measurements"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/scoring"
	"github.com/flomentum/vitalscore/internal/users"
	"github.com/flomentum/vitalscore/pkg/logging"
)

// Dependencies is every collaborator the HTTP layer calls into. It holds
// no state of its own; cmd/vitalsd's serve command assembles one at
// startup and hands it to NewRouter.
type Dependencies struct {
	Catalog        *catalog.Catalog
	Measurements   *measurements.Store
	Samples        *aggregation.SampleStore
	Baselines      *baseline.Store
	Readiness      *scoring.ScoreCache[model.ReadinessScore]
	Sleep          *scoring.ScoreCache[model.SleepScore]
	Momentum       *scoring.ScoreCache[model.MomentumScore]
	Forecast       *forecast.Store
	Pipeline       *labpipeline.Pipeline
	Jobs           *labpipeline.JobStore
	InsightCache   *insightcache.Cache
	InsightGen     *insightgen.Generator
	Correlation    *correlation.Store
	BioAge         *bioage.Estimator
	Users          *users.Store
	Aggregator     *aggregation.Aggregator
	SleepProcessor *aggregation.SleepProcessor
	Logger         *logging.Logger

	ReadinessCalibrationDays int
	BaselineWindowDays       int
}

// NewRouter builds the gin engine serving the representative REST
// surface described by spec.md §6: measurements CRUD, lab upload and
// job polling, the three daily scores, the forecast summary, insight
// cards, and the biological-age estimate.
func NewRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("vitalscore-api"))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	registerMeasurementRoutes(v1, deps)
	registerLabRoutes(v1, deps)
	registerScoreRoutes(v1, deps)
	registerForecastRoutes(v1, deps)
	registerInsightRoutes(v1, deps)
	registerBioAgeRoutes(v1, deps)
	RegisterSampleRoutes(v1, deps.Aggregator, deps)

	return r
}

// writeAPIError translates an apierr.Kind (when err carries one) to its
// HTTP status and a consistent JSON body; anything else is a 500.
func writeAPIError(c *gin.Context, err error) {
	status, body := apiErrorResponse(err)
	c.JSON(status, body)
}
