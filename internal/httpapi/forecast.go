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

	"github.com/flomentum/vitalscore/internal/apierr"
)

func registerForecastRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.GET("/forecast/summary", forecastSummaryHandler(deps))
}

// forecastSummaryHandler serves the last summary the forecast worker
// computed for the user; the worker itself runs off the request path
// (§5), so this handler never recomputes inline.
func forecastSummaryHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		summary, found, err := deps.Forecast.GetSummary(c.Request.Context(), user)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		if !found {
			writeAPIError(c, apierr.New(apierr.KindInsufficientData, "no forecast summary computed yet for "+user))
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
