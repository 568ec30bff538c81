package migrations

import (
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// IsSQLite reports whether the handle speaks the SQLite dialect.
// Migrations branch on this for inline FOREIGN KEY clauses, which
// SQLite cannot add after table creation.
func IsSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}

// IsPostgreSQL reports whether the handle speaks the PostgreSQL
// dialect. Constraint additions via ALTER TABLE only run there.
func IsPostgreSQL(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}
