package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys.
// Time ordering keeps b-tree indexes append-mostly on both PostgreSQL
// and SQLite. Panics only on entropy exhaustion, at which point nothing
// else would work either.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
