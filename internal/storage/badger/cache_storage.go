package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the CacheStorage interface for Badger. It
// backs the persistent cache tier; the session and task-result tiers
// live in process memory and never touch this store.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) *CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// GetEntry returns the stored entry without evaluating its TTL. Expiry
// is the cache service's call, against its own clock.
func (s *CacheStorage) GetEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

func (s *CacheStorage) SetEntry(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache entry key is required")
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a key. Deleting a missing key is a no-op.
func (s *CacheStorage) DeleteEntry(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every entry whose key starts with the prefix,
// returning how many were removed. Used for integration invalidation
// where all of an integration's keys share the "metrics:<id>" prefix.
func (s *CacheStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var entries []*models.CacheEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("Key").Ne("")); err != nil {
		return 0, fmt.Errorf("failed to scan cache entries: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Key, prefix) {
			continue
		}
		if err := s.db.Store().Delete(entry.Key, &models.CacheEntry{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return removed, fmt.Errorf("failed to delete cache entry %s: %w", entry.Key, err)
		}
		removed++
	}
	return removed, nil
}

// DeleteExpired removes every entry past its TTL at the given time,
// returning how many were removed. Runs from the scheduled cache
// cleanup job.
func (s *CacheStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var entries []*models.CacheEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("Key").Ne("")); err != nil {
		return 0, fmt.Errorf("failed to scan cache entries: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Expired(now) {
			continue
		}
		if err := s.db.Store().Delete(entry.Key, &models.CacheEntry{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return removed, fmt.Errorf("failed to delete cache entry %s: %w", entry.Key, err)
		}
		removed++
	}
	return removed, nil
}

func (s *CacheStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.CacheEntry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(count), nil
}

var _ interfaces.CacheStorage = (*CacheStorage)(nil)
