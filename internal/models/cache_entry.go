package models

import (
	"encoding/json"
	"time"
)

// CacheTier identifies one cache layer. Tiers expire independently:
// session and task-result live in process memory, persistent survives
// restarts in BadgerDB.
type CacheTier string

const (
	CacheTierSession    CacheTier = "session"
	CacheTierPersistent CacheTier = "persistent"
	CacheTierTaskResult CacheTier = "task_result"
)

// CacheEntry is a tier-scoped key-value pair. Expiry is evaluated at
// read time against the stored write timestamp, never eagerly.
type CacheEntry struct {
	Key      string          `json:"key"`
	Tier     CacheTier       `json:"tier"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at the given time
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}
