// Package session owns the opaque-token session layer: collision-safe
// token generation, the Postgres-backed store and a Redis snapshot cache.
package session

import (
	"time"

	"github.com/tessera-pm/tessera/internal/shared"
)

// Session maps an opaque token to a principal snapshot. Sessions are
// created at login, destroyed at logout or expiry, and never mutated.
type Session struct {
	ID        string
	Principal shared.Principal
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at time now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
