package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// SyncJobHandler processes a dequeued sync job
type SyncJobHandler func(ctx context.Context, job *models.SyncJob) error

// QueueManager manages the persistent sync job queue
type QueueManager interface {
	// Enqueue adds a job to the queue, immediately visible
	Enqueue(ctx context.Context, job *models.SyncJob) error

	// EnqueueWithDelay adds a job that becomes visible after the delay.
	// Used for retry backoff.
	EnqueueWithDelay(ctx context.Context, job *models.SyncJob, delay time.Duration) error

	// Receive pulls the next visible job. Returns models.ErrNoMessage when
	// the queue is empty. The returned func acknowledges (deletes) the
	// message; unacknowledged messages become visible again after the
	// visibility timeout.
	Receive(ctx context.Context) (*models.SyncJob, func() error, error)

	// Extend pushes out the visibility deadline for an in-flight job
	Extend(ctx context.Context, jobID string, duration time.Duration) error

	// Length returns the number of messages currently in the queue
	Length(ctx context.Context) (int, error)

	// Stats returns queue statistics for the status endpoint
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close releases queue resources
	Close() error
}

// WorkerPool manages concurrent sync job processing
type WorkerPool interface {
	RegisterHandler(kind string, handler SyncJobHandler)
	Start() error
	Stop() error
}
