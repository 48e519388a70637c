package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SnapshotStorage implements the SnapshotStorage interface for Badger.
// Snapshots are write-once: each sync inserts a new record and reads
// always resolve the latest by computed_at.
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snapshot *models.MetricSnapshot) error {
	if snapshot.IntegrationID == "" {
		return fmt.Errorf("snapshot integration ID is required")
	}
	if snapshot.ID == "" {
		snapshot.ID = common.NewSnapshotID()
	}

	if err := s.db.Store().Insert(snapshot.ID, snapshot); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("snapshot %s already exists", snapshot.ID)
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStorage) GetLatestSnapshot(ctx context.Context, integrationID string) (*models.MetricSnapshot, error) {
	var snapshots []*models.MetricSnapshot
	query := badgerhold.Where("IntegrationID").Eq(integrationID).SortBy("ComputedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to query snapshots for integration %s: %w", integrationID, err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshot for integration %s: %w", integrationID, interfaces.ErrKeyNotFound)
	}
	return snapshots[0], nil
}

func (s *SnapshotStorage) ListSnapshots(ctx context.Context, integrationID string, limit int) ([]*models.MetricSnapshot, error) {
	var snapshots []*models.MetricSnapshot
	query := badgerhold.Where("IntegrationID").Eq(integrationID).SortBy("ComputedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to list snapshots for integration %s: %w", integrationID, err)
	}
	return snapshots, nil
}

// DeleteSnapshots removes every snapshot for an integration, returning
// how many were deleted. Called when the integration itself is deleted.
func (s *SnapshotStorage) DeleteSnapshots(ctx context.Context, integrationID string) (int, error) {
	query := badgerhold.Where("IntegrationID").Eq(integrationID)

	count, err := s.db.Store().Count(&models.MetricSnapshot{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots for integration %s: %w", integrationID, err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.MetricSnapshot{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete snapshots for integration %s: %w", integrationID, err)
	}
	return int(count), nil
}

func (s *SnapshotStorage) CountSnapshots(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.MetricSnapshot{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return int(count), nil
}

var _ interfaces.SnapshotStorage = (*SnapshotStorage)(nil)
