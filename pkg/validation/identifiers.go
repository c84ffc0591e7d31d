// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for
// security-critical operations.
//
// This package contains validators for user-provided inputs that flow into
// badger key prefixes, Flux queries, object-store keys, or external vendor
// calls. Using these validators prevents injection attacks (Flux injection,
// path traversal, key-prefix collision) before a value ever reaches a query
// builder.
package validation

import (
	"fmt"
	"regexp"
)

// biomarkerIdPattern matches a catalog biomarker id: lowercase snake_case,
// stable across releases.
var biomarkerIdPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidateBiomarkerId validates a biomarker id before it is interpolated
// into a Flux query (internal/analytics) or used as a badger key component
// (internal/measurements).
//
// Valid ids:
//   - 1-64 characters
//   - lowercase letters, digits, underscores
//   - must start with a letter
//
// Example:
//
//	if err := validation.ValidateBiomarkerId(id); err != nil {
//	    return nil, fmt.Errorf("invalid biomarker id: %w", err)
//	}
//	// Safe to use in a Flux query or badger key
func ValidateBiomarkerId(id string) error {
	if id == "" {
		return fmt.Errorf("biomarker id cannot be empty")
	}
	if !biomarkerIdPattern.MatchString(id) {
		return fmt.Errorf("invalid biomarker id %q: must match %s", id, biomarkerIdPattern.String())
	}
	return nil
}

// userIdPattern matches an opaque external user identifier. Flomentum does
// not mint its own user ids; it accepts whatever stable identifier the
// upstream identity system assigns and only guards against characters that
// would let a user id escape a query literal.
var userIdPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// ValidateUserId validates an external user id before it is used as a Flux
// or SQL query parameter.
func ValidateUserId(id string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if !userIdPattern.MatchString(id) {
		return fmt.Errorf("invalid user id %q: contains unsafe characters", id)
	}
	return nil
}

// localDatePattern matches a YYYY-MM-DD local date string, the key
// component of a DailyMetricRow.
var localDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateLocalDate validates a local_date string before it is used as a
// Flux bucket predicate or badger daily-row key component.
func ValidateLocalDate(date string) error {
	if !localDatePattern.MatchString(date) {
		return fmt.Errorf("invalid local date %q: expected YYYY-MM-DD", date)
	}
	return nil
}
