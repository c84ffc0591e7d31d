// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import "time"

// JobStatus is the closed state-machine for a LabUploadJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobNeedsReview JobStatus = "needs_review"
	JobFailed     JobStatus = "failed"
)

// IsValid reports whether s is one of the declared JobStatus values.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobNeedsReview, JobFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job has reached a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobNeedsReview, JobFailed:
		return true
	}
	return false
}

// JobStepStatus is the per-step outcome recorded in JobStep.
type JobStepStatus string

const (
	StepStarted   JobStepStatus = "started"
	StepSucceeded JobStepStatus = "succeeded"
	StepFailed    JobStepStatus = "failed"
)

// JobStep is one entry in a LabUploadJob's ordered, append-only progress
// log. It is what lets a crashed worker resume at the last checkpoint and
// what a client polls to render incremental progress.
type JobStep struct {
	Name      string
	Status    JobStepStatus
	Timestamp time.Time
	Detail    string
}

// FailedBiomarker is one entry of a job's result_payload.failedBiomarkers:
// a per-biomarker extraction or normalisation failure that did not abort
// the whole upload.
type FailedBiomarker struct {
	RawName string
	RawUnit string
	Reason  string
}

// LabUploadResult is the job's result_payload once extraction has run.
type LabUploadResult struct {
	SessionId        string
	MeasurementIds   []string
	FailedBiomarkers []FailedBiomarker
	LabName          string
	TestDate         *time.Time
}

// LabUploadJob is the durable record backing the async extract-normalise-
// persist pipeline. Status transitions and Steps are
// persisted after every step so a crash resumes at the last checkpoint.
type LabUploadJob struct {
	Id            string
	User          string
	RecordId      string
	Status        JobStatus
	FileSHA256    string
	Steps         []JobStep
	Result        *LabUploadResult
	ErrorDetails  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppendStep records a new ordered step outcome with the current time.
func (j *LabUploadJob) AppendStep(now time.Time, name string, status JobStepStatus, detail string) {
	j.Steps = append(j.Steps, JobStep{Name: name, Status: status, Timestamp: now, Detail: detail})
	j.UpdatedAt = now
}
