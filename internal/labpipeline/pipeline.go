// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package labpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/flomentum/vitalscore/internal/aivendor"
	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/measurements"
	"github.com/flomentum/vitalscore/internal/metrics"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/normalize"
	"github.com/flomentum/vitalscore/internal/objectstore"
	"github.com/flomentum/vitalscore/pkg/logging"
)

var tracer = otel.Tracer("vitalscore.labpipeline")

// MaxUploadBytes is the §4.3 upload size cap: 10 MiB.
const MaxUploadBytes = 10 << 20

// MaxTestDateAgeYears bounds how far in the past a lab's test_date may be.
const MaxTestDateAgeYears = 10

// Pipeline drives the lab upload state machine: pending -> processing ->
// {completed | needs_review | failed}.
type Pipeline struct {
	jobs    *JobStore
	objects objectstore.Store
	vendor  aivendor.Vendor
	meas    *measurements.Store
	logger  *logging.Logger
}

// New constructs a Pipeline.
func New(jobs *JobStore, objects objectstore.Store, vendor aivendor.Vendor, meas *measurements.Store, logger *logging.Logger) *Pipeline {
	return &Pipeline{jobs: jobs, objects: objects, vendor: vendor, meas: meas, logger: logger}
}

// Accept validates and stages an uploaded file, persists a new job in
// JobPending, and returns it. The caller is responsible for enqueueing
// Run to execute off the request path (§5 Backpressure: "Lab uploads run
// off the request path").
func (p *Pipeline) Accept(ctx context.Context, user string, fileBytes []byte) (model.LabUploadJob, error) {
	if len(fileBytes) == 0 {
		return model.LabUploadJob{}, apierr.New(apierr.KindValidationError, "empty upload")
	}
	if len(fileBytes) > MaxUploadBytes {
		return model.LabUploadJob{}, apierr.New(apierr.KindValidationError, "file exceeds 10 MiB limit")
	}

	sum := sha256.Sum256(fileBytes)
	hash := hex.EncodeToString(sum[:])
	objectPath := fmt.Sprintf("labs/%s/%s.pdf", user, hash)

	target, err := p.objects.GetUploadURL(ctx, objectPath, "application/pdf")
	if err != nil {
		return model.LabUploadJob{}, apierr.Wrap(apierr.KindExternalStoreError, "stage upload", err)
	}

	now := time.Now().UTC()
	job := model.LabUploadJob{
		Id:         uuid.NewString(),
		User:       user,
		RecordId:   target.Path,
		Status:     model.JobPending,
		FileSHA256: hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job.AppendStep(now, "accept", model.StepSucceeded, "staged at "+target.Path)

	if err := p.jobs.Create(ctx, job); err != nil {
		return model.LabUploadJob{}, apierr.Wrap(apierr.KindExternalStoreError, "persist lab upload job", err)
	}
	return job, nil
}

// Run executes the pipeline for an already-accepted job: fetch the
// staged file, extract, validate, normalise, persist. Every transition
// is saved before the next step begins so a crash resumes here.
func (p *Pipeline) Run(ctx context.Context, jobId string) error {
	ctx, span := tracer.Start(ctx, "labpipeline.Run")
	defer span.End()

	job, err := p.jobs.Get(ctx, jobId)
	if err != nil {
		return err
	}

	job.Status = model.JobProcessing
	job.AppendStep(time.Now().UTC(), "begin_processing", model.StepStarted, "")
	if err := p.jobs.Save(ctx, job); err != nil {
		return err
	}

	fileBytes, err := p.objects.GetBuffer(ctx, job.RecordId)
	if err != nil {
		return p.fail(ctx, job, "fetch_file", err)
	}

	extraction, err := p.vendor.ExtractStructured(ctx, fileBytes)
	if err != nil {
		job.AppendStep(time.Now().UTC(), "extract", model.StepFailed, err.Error())
		job.Status = model.JobFailed
		detail := err.Error()
		job.ErrorDetails = &detail
		metrics.LabJobsTotal.WithLabelValues(string(job.Status)).Inc()
		return p.jobs.Save(ctx, job)
	}
	job.AppendStep(time.Now().UTC(), "extract", model.StepSucceeded,
		fmt.Sprintf("%d biomarkers found", len(extraction.Biomarkers)))

	testDate, err := parseAndValidateTestDate(extraction.TestDate)
	if err != nil {
		job.AppendStep(time.Now().UTC(), "validate_test_date", model.StepFailed, err.Error())
		job.Status = model.JobFailed
		detail := err.Error()
		job.ErrorDetails = &detail
		metrics.LabJobsTotal.WithLabelValues(string(job.Status)).Inc()
		return p.jobs.Save(ctx, job)
	}
	job.AppendStep(time.Now().UTC(), "validate_test_date", model.StepSucceeded, testDate.Format(time.RFC3339))

	session, err := p.meas.CreateSession(ctx, job.User, model.SourceAIExtracted, testDate, nil)
	if err != nil {
		return p.fail(ctx, job, "create_session", err)
	}

	var (
		measurementIds []string
		failed         []model.FailedBiomarker
		seen           = map[string]bool{}
	)
	for _, raw := range extraction.Biomarkers {
		input := normalize.Input{Name: raw.Name, Value: raw.Value, Unit: raw.Unit}
		m, err := p.meas.CreateMeasurement(ctx, session.Id, model.SourceAIExtracted, input,
			model.NormalisationContext{}, testDate)
		if err != nil {
			failed = append(failed, model.FailedBiomarker{RawName: raw.Name, RawUnit: raw.Unit, Reason: err.Error()})
			continue
		}
		if seen[m.BiomarkerId] {
			failed = append(failed, model.FailedBiomarker{RawName: raw.Name, RawUnit: raw.Unit,
				Reason: "duplicate biomarker within this upload"})
			continue
		}
		seen[m.BiomarkerId] = true
		measurementIds = append(measurementIds, m.Id)
	}
	job.AppendStep(time.Now().UTC(), "normalise_and_persist", model.StepSucceeded,
		fmt.Sprintf("%d persisted, %d failed", len(measurementIds), len(failed)))

	job.Result = &model.LabUploadResult{
		SessionId:        session.Id,
		MeasurementIds:   measurementIds,
		FailedBiomarkers: failed,
		LabName:          extraction.LabName,
		TestDate:         &testDate,
	}

	switch {
	case len(failed) > 0 && len(measurementIds) == 0:
		job.Status = model.JobNeedsReview
	case len(failed) > 0:
		job.Status = model.JobNeedsReview
	default:
		job.Status = model.JobCompleted
	}
	job.AppendStep(time.Now().UTC(), "finalize", model.StepSucceeded, string(job.Status))
	metrics.LabJobsTotal.WithLabelValues(string(job.Status)).Inc()
	return p.jobs.Save(ctx, job)
}

func (p *Pipeline) fail(ctx context.Context, job model.LabUploadJob, step string, cause error) error {
	job.AppendStep(time.Now().UTC(), step, model.StepFailed, cause.Error())
	job.Status = model.JobFailed
	detail := cause.Error()
	job.ErrorDetails = &detail
	metrics.LabJobsTotal.WithLabelValues(string(job.Status)).Inc()
	return p.jobs.Save(ctx, job)
}

// parseAndValidateTestDate parses an RFC3339 or YYYY-MM-DD date string
// and enforces §4.3's [now - 10 years, now] window.
func parseAndValidateTestDate(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02"}
	var parsed time.Time
	var err error
	for _, layout := range layouts {
		parsed, err = time.Parse(layout, raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, apierr.New(apierr.KindInvalidTestDate, "could not parse test date "+raw)
	}
	now := time.Now().UTC()
	earliest := now.AddDate(-MaxTestDateAgeYears, 0, 0)
	if parsed.Before(earliest) || parsed.After(now) {
		return time.Time{}, apierr.New(apierr.KindInvalidTestDate,
			"test date out of range [now-10y, now]")
	}
	return parsed, nil
}
