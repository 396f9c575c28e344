// Package cache implements the two-tier capture cache: a bounded in-memory LRU with per-entry expiry
// (L1) in front of a durable storage.Provider (L2).
//
// Freshness is decided by timestamp arithmetic on StoredAt and TTL, never by backend expiry features, so
// an entry observed after StoredAt+TTL is never returned from either layer. Cache failures are logged
// and counted but never fail the caller's request.
package cache

import (
	"time"

	"github.com/JakeFAU/shotapi/internal/capture"
)

// Entry is one cached artifact.
type Entry struct {
	Key      string
	Payload  []byte
	Kind     capture.ContentKind
	StoredAt time.Time
	TTL      time.Duration
}

// ExpiresAt returns the instant the entry stops being served.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}
