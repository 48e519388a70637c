package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SyncJobStorage implements the SyncJobStorage interface for Badger.
// Job records mirror the durable queue so the API can report attempt
// history after the queue message itself is gone.
type SyncJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSyncJobStorage creates a new SyncJobStorage instance
func NewSyncJobStorage(db *BadgerDB, logger arbor.ILogger) *SyncJobStorage {
	return &SyncJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SyncJobStorage) SaveJob(ctx context.Context, job *models.SyncJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *SyncJobStorage) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", id, interfaces.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *SyncJobStorage) ListJobs(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	query := badgerhold.Where("ID").Ne("").SortBy("EnqueuedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *SyncJobStorage) ListJobsByIntegration(ctx context.Context, integrationID string, limit int) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	query := badgerhold.Where("IntegrationID").Eq(integrationID).SortBy("EnqueuedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs for integration %s: %w", integrationID, err)
	}
	return jobs, nil
}

// DeleteFinishedBefore prunes terminal jobs whose finished_at is older
// than the cutoff. Queued and running jobs are never touched. The scan
// filters in Go because finished_at is a pointer field.
func (s *SyncJobStorage) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var jobs []*models.SyncJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return 0, fmt.Errorf("failed to scan jobs: %w", err)
	}

	deleted := 0
	for _, job := range jobs {
		if !job.State.IsTerminal() {
			continue
		}
		if job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(job.ID, &models.SyncJob{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

var _ interfaces.SyncJobStorage = (*SyncJobStorage)(nil)
