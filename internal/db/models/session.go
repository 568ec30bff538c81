package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session tracks an authenticated user session. Only the SHA-256 hash
// of the opaque bearer token is stored; the token itself is returned
// to the client once at login and never persisted.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID             string    `bun:"id,pk,type:uuid"`
	UserID         string    `bun:"user_id,notnull,type:uuid"`
	TokenHash      string    `bun:"token_hash,notnull,unique"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastActivityAt time.Time `bun:"last_activity_at,notnull,default:current_timestamp"`
}

// ExpiredAt reports whether the session is expired at the given
// instant under a sliding idle timeout and an absolute lifetime cap
// from creation. A non-positive maxLifetime disables the cap. Mirrors
// the predicate the repository uses in SQL.
func (s *Session) ExpiredAt(now time.Time, idleTimeout, maxLifetime time.Duration) bool {
	if now.Sub(s.LastActivityAt) >= idleTimeout {
		return true
	}
	return maxLifetime > 0 && now.Sub(s.CreatedAt) >= maxLifetime
}
