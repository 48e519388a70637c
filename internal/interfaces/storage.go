package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// IntegrationStorage - persistence for integration records
type IntegrationStorage interface {
	SaveIntegration(ctx context.Context, integration *models.Integration) error
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)
	ListIntegrations(ctx context.Context) ([]*models.Integration, error)
	ListIntegrationsByTeam(ctx context.Context, teamID string) ([]*models.Integration, error)
	UpdateIntegration(ctx context.Context, integration *models.Integration) error

	// UpdateSyncState mutates only the sync-cycle fields (status,
	// last_sync, last_error), leaving config and credentials alone.
	UpdateSyncState(ctx context.Context, id string, status models.IntegrationStatus, lastSync *time.Time, lastError string) error

	DeleteIntegration(ctx context.Context, id string) error
	CountIntegrations(ctx context.Context) (int, error)
}

// TeamStorage - persistence for teams (delete is a soft-delete)
type TeamStorage interface {
	SaveTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListTeams(ctx context.Context, activeOnly bool) ([]*models.Team, error)
	UpdateTeam(ctx context.Context, team *models.Team) error
	DeactivateTeam(ctx context.Context, id string) error
}

// SnapshotStorage - persistence for immutable metric snapshots
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, snapshot *models.MetricSnapshot) error
	GetLatestSnapshot(ctx context.Context, integrationID string) (*models.MetricSnapshot, error)
	ListSnapshots(ctx context.Context, integrationID string, limit int) ([]*models.MetricSnapshot, error)
	DeleteSnapshots(ctx context.Context, integrationID string) (int, error)
	CountSnapshots(ctx context.Context) (int, error)
}

// SyncJobStorage - persistence for the sync job state machine
type SyncJobStorage interface {
	SaveJob(ctx context.Context, job *models.SyncJob) error
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.SyncJob, error)
	ListJobsByIntegration(ctx context.Context, integrationID string, limit int) ([]*models.SyncJob, error)

	// DeleteFinishedBefore prunes terminal jobs older than the cutoff,
	// returning how many were removed.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CacheStorage - backing store for the persistent cache tier
type CacheStorage interface {
	GetEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	SetEntry(ctx context.Context, entry *models.CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// KVPair represents a key-value setting with metadata
type KVPair struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KVStorage - small settings store (secrets for credential references,
// scheduler job overrides and the like)
type KVStorage interface {
	Get(ctx context.Context, key string) (string, error)
	GetPair(ctx context.Context, key string) (*KVPair, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*KVPair, error)

	// GetAll returns every pair as a map, used to build the
	// {key-name} replacement map for seed files.
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager aggregates all storage interfaces behind one handle
type StorageManager interface {
	IntegrationStorage() IntegrationStorage
	TeamStorage() TeamStorage
	SnapshotStorage() SnapshotStorage
	SyncJobStorage() SyncJobStorage
	CacheStorage() CacheStorage
	KVStorage() KVStorage

	// LoadEnvFile loads KEY=value pairs from a .env file into the KV
	// store. Missing file is not an error.
	LoadEnvFile(ctx context.Context, filePath string) error

	// LoadSeedsFromFiles loads team and integration definitions from
	// YAML files in a directory, substituting {key-name} references
	// from the KV store. Missing directory is not an error.
	LoadSeedsFromFiles(ctx context.Context, dirPath string) error

	// DB returns the backend-specific handle (*badgerhold.Store for the
	// Badger backend) so the queue can share the same database.
	DB() interface{}

	Close() error
}
