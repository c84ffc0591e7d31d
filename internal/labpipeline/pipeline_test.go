// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package labpipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomentum/vitalscore/internal/aivendor"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/measurements"
	"github.com/flomentum/vitalscore/internal/model"
	"github.com/flomentum/vitalscore/internal/objectstore"
)

// fakeObjectStore is an in-memory objectstore.Store standing in for GCS
// in tests -- the pipeline only ever stages and re-reads one buffer per
// job, so a map is sufficient.
type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore { return &fakeObjectStore{objects: map[string][]byte{}} }

func (f *fakeObjectStore) GetUploadURL(_ context.Context, objectPath, _ string) (objectstore.UploadTarget, error) {
	return objectstore.UploadTarget{URL: "https://fake/" + objectPath, Path: objectPath}, nil
}
func (f *fakeObjectStore) GetBuffer(_ context.Context, path string) ([]byte, error) {
	return f.objects[path], nil
}
func (f *fakeObjectStore) SetAcl(_ context.Context, _ string, _ objectstore.ACL) error { return nil }
func (f *fakeObjectStore) Download(_ context.Context, path string, w io.Writer) error {
	_, err := w.Write(f.objects[path])
	return err
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.Reload(catalog.CatalogFile{
		Biomarkers: []model.Biomarker{
			{Id: "glucose", CanonicalName: "Glucose", CanonicalUnit: "mmol/L", Category: model.CategoryMetabolic},
			{Id: "ferritin", CanonicalName: "Ferritin", CanonicalUnit: "ug/L", Category: model.CategoryHematology},
		},
		Synonyms: []model.Synonym{
			{BiomarkerId: "glucose", Label: "Glucose"},
			{BiomarkerId: "ferritin", Label: "Ferritin"},
		},
	})
	return c
}

func newTestPipeline(t *testing.T, vendor aivendor.Vendor) (*Pipeline, *fakeObjectStore, string) {
	t.Helper()
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	objects := newFakeObjectStore()
	jobs := NewJobStore(kv)
	meas := measurements.New(kv, testCatalog(t), 0.005, nil)
	p := New(jobs, objects, vendor, meas, nil)

	fileBytes := []byte("%PDF-fake-lab-report")
	job, err := p.Accept(context.Background(), "user-1", fileBytes)
	require.NoError(t, err)
	objects.objects[job.RecordId] = fileBytes
	return p, objects, job.Id
}

func TestPipeline_AcceptRejectsEmptyUpload(t *testing.T) {
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	jobs := NewJobStore(kv)
	meas := measurements.New(kv, testCatalog(t), 0.005, nil)
	p := New(jobs, newFakeObjectStore(), &aivendor.StubVendor{}, meas, nil)

	_, err = p.Accept(context.Background(), "user-1", nil)
	require.Error(t, err)
}

func TestPipeline_AcceptRejectsOversizedUpload(t *testing.T) {
	kv, err := badgerkv.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	jobs := NewJobStore(kv)
	meas := measurements.New(kv, testCatalog(t), 0.005, nil)
	p := New(jobs, newFakeObjectStore(), &aivendor.StubVendor{}, meas, nil)

	_, err = p.Accept(context.Background(), "user-1", make([]byte, MaxUploadBytes+1))
	require.Error(t, err)
}

func TestPipeline_RunCompletesWhenEveryRowNormalises(t *testing.T) {
	vendor := &aivendor.StubVendor{
		ExtractionResult: aivendor.ExtractionResult{
			Biomarkers: []aivendor.ExtractedBiomarker{
				{Name: "Glucose", Value: 90, Unit: "mmol/L"},
				{Name: "Ferritin", Value: 50, Unit: "ug/L"},
			},
			TestDate: time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"),
			LabName:  "Quest",
		},
	}
	p, _, jobId := newTestPipeline(t, vendor)

	require.NoError(t, p.Run(context.Background(), jobId))

	job, err := p.jobs.Get(context.Background(), jobId)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.MeasurementIds, 2)
	assert.Empty(t, job.Result.FailedBiomarkers)
}

// One unresolvable row (an unknown biomarker name) must not fail the
// whole upload -- it's accumulated as a non-fatal per-biomarker failure
// and the job still completes with needs_review for the rest (spec.md
// §8 scenario 3: "lab upload with one bad row").
func TestPipeline_RunAccumulatesNonFatalPerBiomarkerFailures(t *testing.T) {
	vendor := &aivendor.StubVendor{
		ExtractionResult: aivendor.ExtractionResult{
			Biomarkers: []aivendor.ExtractedBiomarker{
				{Name: "Glucose", Value: 90, Unit: "mmol/L"},
				{Name: "Unobtainium Level", Value: 1, Unit: "widgets"},
			},
			TestDate: time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"),
			LabName:  "Quest",
		},
	}
	p, _, jobId := newTestPipeline(t, vendor)

	require.NoError(t, p.Run(context.Background(), jobId))

	job, err := p.jobs.Get(context.Background(), jobId)
	require.NoError(t, err)
	assert.Equal(t, model.JobNeedsReview, job.Status)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.MeasurementIds, 1)
	require.Len(t, job.Result.FailedBiomarkers, 1)
	assert.Equal(t, "Unobtainium Level", job.Result.FailedBiomarkers[0].RawName)
}

func TestPipeline_RunFailsJobWhenExtractionErrors(t *testing.T) {
	vendor := &aivendor.StubVendor{ExtractErr: assert.AnError}
	p, _, jobId := newTestPipeline(t, vendor)

	err := p.Run(context.Background(), jobId)
	require.NoError(t, err)

	job, getErr := p.jobs.Get(context.Background(), jobId)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobFailed, job.Status)
	require.NotNil(t, job.ErrorDetails)
}

func TestPipeline_RunFailsJobOnTestDateOutOfRange(t *testing.T) {
	vendor := &aivendor.StubVendor{
		ExtractionResult: aivendor.ExtractionResult{
			Biomarkers: []aivendor.ExtractedBiomarker{{Name: "Glucose", Value: 90, Unit: "mmol/L"}},
			TestDate:   time.Now().UTC().AddDate(-20, 0, 0).Format("2006-01-02"),
		},
	}
	p, _, jobId := newTestPipeline(t, vendor)

	require.NoError(t, p.Run(context.Background(), jobId))

	job, err := p.jobs.Get(context.Background(), jobId)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
}
