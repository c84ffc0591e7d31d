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
)

func registerBioAgeRoutes(rg *gin.RouterGroup, deps *Dependencies) {
	rg.GET("/biological-age", bioAgeHandler(deps))
}

func bioAgeHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			writeAPIError(c, apierr.New(apierr.KindValidationError, "user query parameter required"))
			return
		}
		age, err := strconv.ParseFloat(c.Query("chronologicalAge"), 64)
		if err != nil {
			writeAPIError(c, apierr.Wrap(apierr.KindValidationError, "chronologicalAge query parameter required", err))
			return
		}
		estimate, err := deps.BioAge.Estimate(c.Request.Context(), user, age, time.Now().UTC())
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, estimate)
	}
}
