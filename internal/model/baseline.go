// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import "time"

// BaselineMetric enumerates the metrics the Baseline Calculator tracks.
type BaselineMetric string

const (
	MetricRestingHR       BaselineMetric = "resting_hr"
	MetricHRV             BaselineMetric = "hrv"
	MetricRespiratoryRate BaselineMetric = "respiratory_rate"
	MetricSteps           BaselineMetric = "steps"
)

// BaselineWindowDays enumerates the supported rolling window sizes.
var BaselineWindowDays = []int{14, 28, 90}

// PersonalBaseline is one rolling-window central tendency for one metric.
type PersonalBaseline struct {
	User              string
	Metric            BaselineMetric
	WindowDays        int
	Median            float64
	P25               float64
	P75               float64
	SampleCount       int
	InsufficientData  bool
	UpdatedAt         time.Time
}
