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

// TeamStorage implements the TeamStorage interface for Badger
type TeamStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTeamStorage creates a new TeamStorage instance
func NewTeamStorage(db *BadgerDB, logger arbor.ILogger) *TeamStorage {
	return &TeamStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TeamStorage) SaveTeam(ctx context.Context, team *models.Team) error {
	if team.Name == "" {
		return fmt.Errorf("team name is required")
	}

	if team.ID == "" {
		team.ID = common.NewTeamID()
	}

	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
		team.Active = true
	}
	team.UpdatedAt = now

	if err := s.db.Store().Upsert(team.ID, team); err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	return nil
}

func (s *TeamStorage) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	var team models.Team
	if err := s.db.Store().Get(id, &team); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("team %s: %w", id, interfaces.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

func (s *TeamStorage) ListTeams(ctx context.Context, activeOnly bool) ([]*models.Team, error) {
	var teams []*models.Team
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if activeOnly {
		query = badgerhold.Where("Active").Eq(true).SortBy("CreatedAt").Reverse()
	}
	if err := s.db.Store().Find(&teams, query); err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (s *TeamStorage) UpdateTeam(ctx context.Context, team *models.Team) error {
	if team.ID == "" {
		return fmt.Errorf("team ID is required")
	}
	if team.Name == "" {
		return fmt.Errorf("team name is required")
	}

	existing, err := s.GetTeam(ctx, team.ID)
	if err != nil {
		return err
	}

	team.CreatedAt = existing.CreatedAt
	team.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(team.ID, team); err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return nil
}

// DeactivateTeam soft-deletes a team. The record stays so historical
// snapshots and integrations keep resolving their team reference.
func (s *TeamStorage) DeactivateTeam(ctx context.Context, id string) error {
	team, err := s.GetTeam(ctx, id)
	if err != nil {
		return err
	}

	team.Active = false
	team.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(team.ID, team); err != nil {
		return fmt.Errorf("failed to deactivate team %s: %w", id, err)
	}
	return nil
}

var _ interfaces.TeamStorage = (*TeamStorage)(nil)
