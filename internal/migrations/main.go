package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry all migration files attach themselves to
// via init(). The db CLI subcommands run it with a bun migrator.
var Migrations = migrate.NewMigrations()
