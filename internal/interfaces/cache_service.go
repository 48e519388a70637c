// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// CacheService provides tiered caching for computed metrics and sync results.
// The session and task-result tiers live in process memory; the persistent
// tier is backed by BadgerDB and survives restarts.
type CacheService interface {
	// Get retrieves a value from a tier. Returns false if the key is
	// absent or the entry has expired.
	Get(ctx context.Context, tier models.CacheTier, key string) ([]byte, bool)

	// Set stores a value in a tier with the tier's configured TTL.
	Set(ctx context.Context, tier models.CacheTier, key string, value []byte) error

	// SetWithTTL stores a value with an explicit TTL overriding the
	// tier default.
	SetWithTTL(ctx context.Context, tier models.CacheTier, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from a tier. Missing keys are not an error.
	Delete(ctx context.Context, tier models.CacheTier, key string) error

	// InvalidateIntegration removes all cached values for an integration
	// across every tier.
	InvalidateIntegration(ctx context.Context, integrationID string) error

	// CleanupExpired removes expired entries from all tiers, returning
	// the number removed.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats returns per-tier entry counts for the status endpoint.
	Stats(ctx context.Context) (map[string]int, error)
}
