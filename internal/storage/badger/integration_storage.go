package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// IntegrationStorage implements the IntegrationStorage interface for Badger
type IntegrationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIntegrationStorage creates a new IntegrationStorage instance
func NewIntegrationStorage(db *BadgerDB, logger arbor.ILogger) *IntegrationStorage {
	return &IntegrationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *IntegrationStorage) SaveIntegration(ctx context.Context, integration *models.Integration) error {
	if err := integration.Validate(); err != nil {
		return fmt.Errorf("invalid integration: %w", err)
	}

	if integration.ID == "" {
		integration.ID = common.NewIntegrationID()
	}
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusPending
	}

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	if err := s.db.Store().Upsert(integration.ID, integration); err != nil {
		return fmt.Errorf("failed to save integration: %w", err)
	}
	return nil
}

func (s *IntegrationStorage) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	var integration models.Integration
	if err := s.db.Store().Get(id, &integration); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("integration %s: %w", id, interfaces.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return &integration, nil
}

func (s *IntegrationStorage) ListIntegrations(ctx context.Context) ([]*models.Integration, error) {
	var integrations []*models.Integration
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&integrations, query); err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

func (s *IntegrationStorage) ListIntegrationsByTeam(ctx context.Context, teamID string) ([]*models.Integration, error) {
	var integrations []*models.Integration
	query := badgerhold.Where("TeamID").Eq(teamID).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&integrations, query); err != nil {
		return nil, fmt.Errorf("failed to list integrations for team %s: %w", teamID, err)
	}
	return integrations, nil
}

func (s *IntegrationStorage) UpdateIntegration(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		return fmt.Errorf("integration ID is required")
	}
	if err := integration.Validate(); err != nil {
		return fmt.Errorf("invalid integration: %w", err)
	}

	existing, err := s.GetIntegration(ctx, integration.ID)
	if err != nil {
		return err
	}

	integration.CreatedAt = existing.CreatedAt
	integration.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(integration.ID, integration); err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}
	return nil
}

// UpdateSyncState mutates only the sync-cycle fields. A nil lastSync
// leaves the stored last_sync untouched, so a terminal failure can mark
// the integration failed without erasing when it last synced.
func (s *IntegrationStorage) UpdateSyncState(ctx context.Context, id string, status models.IntegrationStatus, lastSync *time.Time, lastError string) error {
	integration, err := s.GetIntegration(ctx, id)
	if err != nil {
		return err
	}

	integration.Status = status
	if lastSync != nil {
		integration.LastSync = lastSync
	}
	integration.LastError = lastError
	integration.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(integration.ID, integration); err != nil {
		return fmt.Errorf("failed to update sync state for integration %s: %w", id, err)
	}
	return nil
}

func (s *IntegrationStorage) DeleteIntegration(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Integration{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("integration %s: %w", id, interfaces.ErrKeyNotFound)
		}
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

func (s *IntegrationStorage) CountIntegrations(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Integration{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count integrations: %w", err)
	}
	return int(count), nil
}

var _ interfaces.IntegrationStorage = (*IntegrationStorage)(nil)
