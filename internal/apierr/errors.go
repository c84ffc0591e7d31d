// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package apierr defines the closed set of error kinds the health-signal
// pipeline returns and a carrier type that keeps a kind, a
// human-readable message, an optional wrapped cause, and optional
// structured detail together so callers can branch on errors.As/Is without
// parsing strings.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the closed enum of error categories the pipeline surfaces. New
// values are never added silently -- every Kind here has a documented
// meaning and a fixed HTTP mapping.
type Kind string

const (
	KindBiomarkerNotFound     Kind = "BiomarkerNotFound"
	KindUnitConversionError   Kind = "UnitConversionError"
	KindRangeSelectionError   Kind = "RangeSelectionError"
	KindDuplicateMeasurement  Kind = "DuplicateMeasurement"
	KindExtractionFailure     Kind = "ExtractionFailure"
	KindInvalidTestDate       Kind = "InvalidTestDate"
	KindInsufficientData      Kind = "InsufficientData"
	KindBaselineNotReady      Kind = "BaselineNotReady"
	KindExternalAIUnavailable Kind = "ExternalAIUnavailable"
	KindExternalStoreError    Kind = "ExternalStoreError"
	KindPermissionDenied      Kind = "PermissionDenied"
	KindNotFound              Kind = "NotFound"
	KindValidationError       Kind = "ValidationError"
)

// HTTPStatus maps a Kind to the status code the HTTP layer should return
// for it. A 207 multi-status response is handled by the handler composing
// a bulk result, not by a single error, so it has no entry here.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidationError, KindInvalidTestDate:
		return 400
	case KindPermissionDenied:
		return 403
	case KindNotFound, KindBiomarkerNotFound:
		return 404
	case KindDuplicateMeasurement:
		return 409
	case KindInsufficientData, KindBaselineNotReady:
		return 422
	case KindExternalAIUnavailable:
		return 503
	default:
		return 500
	}
}

// Error is the error carrier returned throughout the pipeline. It is never
// used to panic across a package boundary -- every public function that can
// fail returns one explicitly.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Detail carries structured data a caller needs beyond the message,
	// e.g. the missingData list for InsufficientData.
	Detail any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that preserves cause for errors.Is/As chains while
// presenting a stable Kind to callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches structured detail (e.g. a missingData list) and
// returns the same *Error for chaining at the call site.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// reports ok=false otherwise so callers can fall back to a generic 500.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// MissingData is the structured detail attached to an InsufficientData
// error so /readiness/today and friends can render a `missingData` list.
type MissingData struct {
	Fields []string `json:"fields"`
	Reason string   `json:"reason"`
}
