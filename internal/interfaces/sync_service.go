package interfaces

import (
	"context"

	"github.com/ternarybob/pulse/internal/models"
)

// SyncService coordinates sync job lifecycle: enqueueing, execution,
// retry scheduling and sweep fan-out.
type SyncService interface {
	// EnqueueSync creates a sync job for one integration and enqueues it.
	// Returns the job, or models.ErrSyncInFlight if a sync for the
	// integration is already queued or running.
	EnqueueSync(ctx context.Context, integrationID string, trigger models.SyncTrigger) (*models.SyncJob, error)

	// EnqueueSweep creates a sweep job covering all integrations
	EnqueueSweep(ctx context.Context) (*models.SyncJob, error)

	// ExecuteJob runs a dequeued job to completion or retry scheduling.
	// Wired into the worker pool as its handler.
	ExecuteJob(ctx context.Context, job *models.SyncJob) error

	// RunSync performs one sync attempt for an integration and returns
	// the classified result. ExecuteJob and Sweep both drive attempts
	// through it.
	RunSync(ctx context.Context, integrationID string, trigger models.SyncTrigger) (*models.SyncResult, error)

	// Sweep synchronizes every integration, collecting per-integration
	// outcomes without aborting on individual failures.
	Sweep(ctx context.Context) (*models.SweepSummary, error)

	// InFlight reports whether a sync is queued or running for an integration
	InFlight(integrationID string) bool
}
