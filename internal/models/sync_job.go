package models

import (
	"errors"
	"time"
)

// ErrNoMessage is returned by the queue when no message is ready
var ErrNoMessage = errors.New("no messages in queue")

// ErrSyncInFlight is returned when a sync is requested for an integration
// that already has one queued or running
var ErrSyncInFlight = errors.New("sync already in flight for integration")

// Sync job kinds for worker dispatch
const (
	JobKindSync  = "sync"
	JobKindSweep = "sweep"
)

// SyncTrigger identifies how a sync job came to be enqueued
type SyncTrigger string

const (
	SyncTriggerInitial  SyncTrigger = "initial"
	SyncTriggerPeriodic SyncTrigger = "periodic"
	SyncTriggerManual   SyncTrigger = "manual"
)

// JobState is the state-machine position of a sync job
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateExhausted JobState = "exhausted"
)

// CanTransitionTo enforces the monotonic state machine:
// queued -> running -> {succeeded, queued (requeue), failed, exhausted}.
// Terminal states never transition.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobStateQueued:
		return next == JobStateRunning
	case JobStateRunning:
		switch next {
		case JobStateSucceeded, JobStateQueued, JobStateFailed, JobStateExhausted:
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateExhausted:
		return true
	}
	return false
}

// SyncJob is one unit of scheduled sync work. IntegrationID is empty
// for the periodic sweep envelope, which fans out internally.
type SyncJob struct {
	ID            string        `json:"id"`
	IntegrationID string        `json:"integration_id,omitempty"`
	Trigger       SyncTrigger   `json:"trigger"`
	State         JobState      `json:"state"`
	AttemptCount  int           `json:"attempt_count"`
	MaxAttempts   int           `json:"max_attempts"`
	Backoff       time.Duration `json:"backoff"`
	LastError     string        `json:"last_error,omitempty"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// IsSweep reports whether this job is the periodic all-integrations sweep
func (j *SyncJob) IsSweep() bool {
	return j.IntegrationID == ""
}

// Kind returns the worker dispatch kind for this job
func (j *SyncJob) Kind() string {
	if j.IsSweep() {
		return JobKindSweep
	}
	return JobKindSync
}

// SyncOutcome classifies the result of one orchestrated sync cycle
type SyncOutcome string

const (
	SyncOutcomeSuccess          SyncOutcome = "success"
	SyncOutcomePartial          SyncOutcome = "partial" // valid but no activity in the window
	SyncOutcomeRetryableFailure SyncOutcome = "retryable_failure"
	SyncOutcomeTerminalFailure  SyncOutcome = "terminal_failure"
)

// Retryable reports whether the scheduler should requeue on this outcome
func (o SyncOutcome) Retryable() bool {
	return o == SyncOutcomeRetryableFailure
}

// Completed reports whether the cycle produced a usable snapshot
func (o SyncOutcome) Completed() bool {
	return o == SyncOutcomeSuccess || o == SyncOutcomePartial
}

// SyncResult carries the orchestrator's classification back to the
// scheduler, which decides retry vs. exhaustion.
type SyncResult struct {
	IntegrationID string          `json:"integration_id"`
	Outcome       SyncOutcome     `json:"outcome"`
	Snapshot      *MetricSnapshot `json:"snapshot,omitempty"`
	Error         string          `json:"error,omitempty"`
	Duration      time.Duration   `json:"duration"`
}

// SweepSummary is the collect-and-continue result of one periodic
// sweep: per-integration failures are tallied, never propagated.
type SweepSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"` // sync already in flight
	Reasons   []string      `json:"reasons,omitempty"`
	Duration  time.Duration `json:"duration"`
}
