// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"errors"
	"net/http"

	"github.com/flomentum/vitalscore/internal/apierr"
)

// apiErrorResponse maps err to the HTTP status apierr.Kind.HTTPStatus
// declares for it, and a body carrying the kind, message, and any
// structured detail (e.g. apierr.MissingData) the caller attached.
func apiErrorResponse(err error) (int, map[string]any) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		body := map[string]any{
			"error":   apiErr.Kind,
			"message": apiErr.Message,
		}
		if apiErr.Detail != nil {
			body["detail"] = apiErr.Detail
		}
		return apiErr.Kind.HTTPStatus(), body
	}
	return http.StatusInternalServerError, map[string]any{
		"error":   "InternalError",
		"message": err.Error(),
	}
}
