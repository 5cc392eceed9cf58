// Package apikeys resolves opaque API keys to principals for the external
// API surface. Keys are stored as SHA-256 digests; the raw key is shown
// once at creation.
package apikeys

import "time"

// APIKey is one issued key. A user holds at most one active key.
type APIKey struct {
	ID         int64
	UserID     int64
	Digest     string
	Active     bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
