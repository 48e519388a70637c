// Package cache provides the tiered cache behind metric and listing
// reads. The session and task-result tiers live in process memory and
// are lost on restart; the persistent tier is backed by BadgerDB.
// Expiry is evaluated at read time against an injected clock.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// Clock supplies the current time; injected so TTL behavior is testable
type Clock func() time.Time

// Service implements the tiered cache
type Service struct {
	mu      sync.RWMutex
	memory  map[models.CacheTier]map[string]*models.CacheEntry
	storage interfaces.CacheStorage
	ttls    map[models.CacheTier]time.Duration
	clock   Clock
	logger  arbor.ILogger
}

// NewService creates the cache with TTLs from config and the wall clock
func NewService(config *common.Config, storage interfaces.CacheStorage, logger arbor.ILogger) *Service {
	return NewServiceWithClock(config, storage, logger, time.Now)
}

// NewServiceWithClock creates the cache with an explicit clock
func NewServiceWithClock(config *common.Config, storage interfaces.CacheStorage, logger arbor.ILogger, clock Clock) *Service {
	return &Service{
		memory: map[models.CacheTier]map[string]*models.CacheEntry{
			models.CacheTierSession:    make(map[string]*models.CacheEntry),
			models.CacheTierTaskResult: make(map[string]*models.CacheEntry),
		},
		storage: storage,
		ttls: map[models.CacheTier]time.Duration{
			models.CacheTierSession:    common.ParseDurationOr(config.Cache.SessionTTL, 4*time.Hour),
			models.CacheTierPersistent: common.ParseDurationOr(config.Cache.PersistentTTL, 72*time.Hour),
			models.CacheTierTaskResult: common.ParseDurationOr(config.Cache.TaskResultTTL, time.Hour),
		},
		clock:  clock,
		logger: logger,
	}
}

// Get retrieves a value. Expired entries are treated as absent and
// lazily removed.
func (s *Service) Get(ctx context.Context, tier models.CacheTier, key string) ([]byte, bool) {
	now := s.clock()

	if tier == models.CacheTierPersistent {
		entry, err := s.storage.GetEntry(ctx, key)
		if err != nil {
			if err != interfaces.ErrKeyNotFound {
				s.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache read failed")
			}
			return nil, false
		}
		if entry.Expired(now) {
			if err := s.storage.DeleteEntry(ctx, key); err != nil {
				s.logger.Debug().Err(err).Str("key", key).Msg("Failed to drop expired cache entry")
			}
			return nil, false
		}
		return entry.Value, true
	}

	s.mu.RLock()
	entry, ok := s.memory[tier][key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if entry.Expired(now) {
		s.mu.Lock()
		delete(s.memory[tier], key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.Value, true
}

// Set stores a value with the tier's configured TTL
func (s *Service) Set(ctx context.Context, tier models.CacheTier, key string, value []byte) error {
	return s.SetWithTTL(ctx, tier, key, value, s.ttls[tier])
}

// SetWithTTL stores a value with an explicit TTL. Same-key writes are
// last-write-wins.
func (s *Service) SetWithTTL(ctx context.Context, tier models.CacheTier, key string, value []byte, ttl time.Duration) error {
	entry := &models.CacheEntry{
		Key:      key,
		Tier:     tier,
		Value:    value,
		StoredAt: s.clock(),
		TTL:      ttl,
	}

	if tier == models.CacheTierPersistent {
		if err := s.storage.SetEntry(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache write failed")
			return err
		}
		return nil
	}

	s.mu.Lock()
	s.memory[tier][key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a key from a tier. Missing keys are not an error.
func (s *Service) Delete(ctx context.Context, tier models.CacheTier, key string) error {
	if tier == models.CacheTierPersistent {
		return s.storage.DeleteEntry(ctx, key)
	}

	s.mu.Lock()
	delete(s.memory[tier], key)
	s.mu.Unlock()
	return nil
}

// InvalidateIntegration removes an integration's keys across every
// tier. Cached keys are namespaced "<kind>:<integration_id>..." so a
// prefix match on the id segment is enough.
func (s *Service) InvalidateIntegration(ctx context.Context, integrationID string) error {
	s.mu.Lock()
	removed := 0
	for tier, entries := range s.memory {
		for key := range entries {
			if keyBelongsTo(key, integrationID) {
				delete(s.memory[tier], key)
				removed++
			}
		}
	}
	s.mu.Unlock()

	persistentRemoved, err := s.storage.DeleteByPrefix(ctx, "metrics:"+integrationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("integration_id", integrationID).Msg("Persistent cache invalidation failed")
		return err
	}

	s.logger.Debug().
		Str("integration_id", integrationID).
		Int("memory_removed", removed).
		Int("persistent_removed", persistentRemoved).
		Msg("Cache invalidated for integration")
	return nil
}

// CleanupExpired removes expired entries from all tiers
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	now := s.clock()
	removed := 0

	s.mu.Lock()
	for tier, entries := range s.memory {
		for key, entry := range entries {
			if entry.Expired(now) {
				delete(s.memory[tier], key)
				removed++
			}
		}
	}
	s.mu.Unlock()

	persistentRemoved, err := s.storage.DeleteExpired(ctx, now)
	if err != nil {
		return removed, err
	}
	return removed + persistentRemoved, nil
}

// Stats returns live (unexpired) entry counts per tier
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	now := s.clock()
	stats := make(map[string]int)

	s.mu.RLock()
	for tier, entries := range s.memory {
		live := 0
		for _, entry := range entries {
			if !entry.Expired(now) {
				live++
			}
		}
		stats[string(tier)] = live
	}
	s.mu.RUnlock()

	persistentCount, err := s.storage.Count(ctx)
	if err != nil {
		return stats, err
	}
	stats[string(models.CacheTierPersistent)] = persistentCount

	return stats, nil
}

// MetricsKey builds the cache key for an integration's metric snapshot
func MetricsKey(integrationID string) string {
	return "metrics:" + integrationID
}

// TaskResultKey builds the cache key for a completed job's result
func TaskResultKey(jobID string) string {
	return "task_result:" + jobID
}

// keyBelongsTo reports whether a namespaced cache key references the
// integration id
func keyBelongsTo(key, integrationID string) bool {
	idx := strings.Index(key, ":")
	if idx < 0 {
		return false
	}
	rest := key[idx+1:]
	return rest == integrationID || strings.HasPrefix(rest, integrationID+":")
}

// Ensure Service implements CacheService interface
var _ interfaces.CacheService = (*Service)(nil)
