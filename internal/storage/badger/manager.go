package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
)

// Manager implements interfaces.StorageManager backed by BadgerDB
type Manager struct {
	db     *BadgerDB
	logger arbor.ILogger

	integrations *IntegrationStorage
	teams        *TeamStorage
	snapshots    *SnapshotStorage
	jobs         *SyncJobStorage
	cache        *CacheStorage
	kv           *KVStorage
}

// NewManager creates a Badger-backed storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:           db,
		logger:       logger,
		integrations: NewIntegrationStorage(db, logger),
		teams:        NewTeamStorage(db, logger),
		snapshots:    NewSnapshotStorage(db, logger),
		jobs:         NewSyncJobStorage(db, logger),
		cache:        NewCacheStorage(db, logger),
		kv:           NewKVStorage(db, logger),
	}, nil
}

// IntegrationStorage returns the integration storage
func (m *Manager) IntegrationStorage() interfaces.IntegrationStorage {
	return m.integrations
}

// TeamStorage returns the team storage
func (m *Manager) TeamStorage() interfaces.TeamStorage {
	return m.teams
}

// SnapshotStorage returns the metric snapshot storage
func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshots
}

// SyncJobStorage returns the sync job storage
func (m *Manager) SyncJobStorage() interfaces.SyncJobStorage {
	return m.jobs
}

// CacheStorage returns the persistent cache tier storage
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// KVStorage returns the key-value settings storage
func (m *Manager) KVStorage() interfaces.KVStorage {
	return m.kv
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
