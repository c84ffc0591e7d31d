// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/insightgen"
	"github.com/flomentum/vitalscore/internal/model"
)

func registerInsightRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.GET("/insights/:biomarkerId", generateInsightHandler(deps))
	rg.GET("/insights/cards", listInsightCardsHandler(deps))
	rg.POST("/insights/cards/:id/dismiss", dismissInsightCardHandler(deps))
}

// generateInsightHandler implements §4.8: serve a fresh cache entry when
// present, otherwise call the LLM-backed Generator, caching the result
// on success and falling back to a stale cache entry -- never to a
// generic error -- when the live call fails.
func generateInsightHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		biomarkerId := c.Param("biomarkerId")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}

		latest, err := deps.Measurements.GetLatestFor(c.Request.Context(), user, biomarkerId)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if latest == nil {
			writeAPIError(c, apierr.New(apierr.KindInsufficientData, "no measurement on file for "+biomarkerId))
			return
		}
		biomarker, ok := deps.Catalog.Biomarker(biomarkerId)
		if !ok {
			writeAPIError(c, apierr.New(apierr.KindBiomarkerNotFound, biomarkerId))
			return
		}

		fingerprint := latest.Fingerprint()
		now := time.Now().UTC()

		if cached, ok, err := deps.InsightCache.GetFresh(c.Request.Context(), user, biomarkerId, fingerprint, now); err != nil {
			writeAPIError(c, err)
			return
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		history, err := deps.Measurements.GetHistory(c.Request.Context(), user, biomarkerId, 5)
		if err != nil {
			writeAPIError(c, err)
			return
		}

		selectedRange := model.ReferenceRange{BiomarkerId: biomarkerId, Unit: latest.UnitCanonical}
		if latest.ReferenceLow != nil {
			selectedRange.Low = *latest.ReferenceLow
		}
		if latest.ReferenceHigh != nil {
			selectedRange.High = *latest.ReferenceHigh
		}

		payload, genErr := deps.InsightGen.Generate(c.Request.Context(), insightgen.Request{
			User:          user,
			Measurement:   *latest,
			Biomarker:     biomarker,
			SelectedRange: selectedRange,
			TrendHistory:  history,
		})
		if genErr != nil {
			if stale, found, err := deps.InsightCache.GetStaleFallback(c.Request.Context(), user, biomarkerId, fingerprint); err == nil && found {
				c.JSON(http.StatusOK, stale)
				return
			}
			writeAPIError(c, apierr.Wrap(apierr.KindExternalAIUnavailable, "insight generation failed and no cached fallback available", genErr))
			return
		}

		if err := deps.InsightCache.Put(c.Request.Context(), user, biomarkerId, fingerprint, payload, now); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, model.CacheEnvelope{
			Payload:     payload,
			GeneratedAt: now,
			ExpiresAt:   now, // recomputed precisely on next cache read
			CacheStatus: model.CacheFresh,
		})
	}
}

func listInsightCardsHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		cards, err := deps.Correlation.ListActive(c.Request.Context(), user)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cards": cards})
	}
}

func dismissInsightCardHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Correlation.Dismiss(c.Request.Context(), c.Param("id")); err != nil {
			writeAPIError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
