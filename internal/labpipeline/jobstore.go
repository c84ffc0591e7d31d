// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package labpipeline implements the Lab Upload Job pipeline: a durable
// async extract -> normalise -> dedup -> persist flow (§4.3) whose state
// machine survives process restarts because every step is flushed to the
// job store before the next one starts.
package labpipeline

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/apierr"
	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/model"
)

func jobKey(id string) string { return "labjob:" + id }
func userJobIndexKey(user, id string) string { return "labjob_by_user:" + user + ":" + id }

// JobStore persists LabUploadJob records and their append-only step log.
type JobStore struct {
	kv *badgerkv.DB
}

// NewJobStore constructs a JobStore.
func NewJobStore(kv *badgerkv.DB) *JobStore { return &JobStore{kv: kv} }

// Create persists a brand-new job in JobPending.
func (s *JobStore) Create(ctx context.Context, job model.LabUploadJob) error {
	return s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := badgerkv.PutJSON(txn, jobKey(job.Id), job); err != nil {
			return err
		}
		return badgerkv.PutJSON(txn, userJobIndexKey(job.User, job.Id), job.Id)
	})
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (model.LabUploadJob, error) {
	var job model.LabUploadJob
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.GetJSON(txn, jobKey(id), &job)
	})
	if err != nil {
		return model.LabUploadJob{}, apierr.Wrap(apierr.KindNotFound, "lab upload job "+id+" not found", err)
	}
	return job, nil
}

// Save persists the job's current state. Called after every pipeline
// step so a crash resumes at the last checkpoint instead of restarting
// the whole upload.
func (s *JobStore) Save(ctx context.Context, job model.LabUploadJob) error {
	err := s.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, jobKey(job.Id), job)
	})
	if err != nil {
		return fmt.Errorf("save lab upload job %s: %w", job.Id, err)
	}
	return nil
}

// ListForUser returns every job belonging to user, in no particular order.
func (s *JobStore) ListForUser(ctx context.Context, user string) ([]model.LabUploadJob, error) {
	var jobs []model.LabUploadJob
	err := s.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.ScanPrefix(txn, "labjob_by_user:"+user+":", func(_ string, get func(any) error) error {
			var id string
			if err := get(&id); err != nil {
				return err
			}
			var job model.LabUploadJob
			if err := badgerkv.GetJSON(txn, jobKey(id), &job); err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	return jobs, err
}
