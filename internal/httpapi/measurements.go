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
	"github.com/flomentum/vitalscore/internal/normalize"
)

type createMeasurementRequest struct {
	User     string  `json:"user" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Value    float64 `json:"value" binding:"required"`
	Unit     string  `json:"unit" binding:"required"`
	TestDate string  `json:"testDate"`
	AgeYears *float64 `json:"ageYears"`
	Sex      *string `json:"sex"`
	Fasting  *bool   `json:"fasting"`
}

func registerMeasurementRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.POST("/measurements", createMeasurementHandler(deps))
	rg.PUT("/measurements/:id", updateMeasurementHandler(deps))
	rg.DELETE("/measurements/:id", deleteMeasurementHandler(deps))
	rg.GET("/measurements/:biomarkerId/history", historyHandler(deps))
}

func createMeasurementHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMeasurementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "invalid request body", err))
			return
		}

		testDate := time.Now().UTC()
		if req.TestDate != "" {
			parsed, err := time.Parse(time.RFC3339, req.TestDate)
			if err != nil {
				writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "invalid testDate", err))
				return
			}
			testDate = parsed
		}

		session, err := deps.Measurements.CreateSession(c.Request.Context(), req.User, model.SourceManual, testDate, nil)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		var sex *model.Sex
		if req.Sex != nil {
			s := model.Sex(*req.Sex)
			sex = &s
		}
		normCtx := model.NormalisationContext{AgeYears: req.AgeYears, Sex: sex, Fasting: req.Fasting}

		m, err := deps.Measurements.CreateMeasurement(c.Request.Context(), session.Id, model.SourceManual,
			normalize.Input{Name: req.Name, Value: req.Value, Unit: req.Unit}, normCtx, testDate)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if deps.Users != nil {
			_ = deps.Users.Upsert(c.Request.Context(), req.User, "")
		}
		c.JSON(http.StatusCreated, m)
	}
}

type updateMeasurementRequest struct {
	Value     float64 `json:"value" binding:"required"`
	Unit      string  `json:"unit" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	UpdatedBy string  `json:"updatedBy" binding:"required"`
}

func updateMeasurementHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateMeasurementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "invalid request body", err))
			return
		}
		m, err := deps.Measurements.UpdateMeasurement(c.Request.Context(), c.Param("id"),
			normalize.Input{Name: req.Name, Value: req.Value, Unit: req.Unit},
			model.NormalisationContext{}, req.UpdatedBy)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func deleteMeasurementHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Measurements.DeleteMeasurement(c.Request.Context(), c.Param("id")); err != nil {
			writeAPIError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func historyHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit = n
			}
		}
		history, err := deps.Measurements.GetHistory(c.Request.Context(), user, c.Param("biomarkerId"), limit)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"measurements": history})
	}
}
