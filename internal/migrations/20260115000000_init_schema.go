package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/modelhub-io/modelhub/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260115000000, down_20260115000000)
}

// up_20260115000000 creates the full schema: users, sessions, projects,
// accesses and queries.
func up_20260115000000(ctx context.Context, db *bun.DB) error {
	// Users
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`); err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username)`); err != nil {
		return fmt.Errorf("create users username index: %w", err)
	}
	fmt.Println(" OK")

	// Sessions
	fmt.Print(" [up] creating sessions table...")
	q := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create sessions: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash)`); err != nil {
		return fmt.Errorf("create sessions token index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity_at)`); err != nil {
		return fmt.Errorf("create sessions activity index: %w", err)
	}
	if IsPostgreSQL(db) {
		if _, err := db.Exec(`ALTER TABLE sessions ADD CONSTRAINT fk_sessions_user_id FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE`); err != nil {
			return fmt.Errorf("add sessions user FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// Projects
	fmt.Print(" [up] creating projects table...")
	q = db.NewCreateTable().
		Model((*models.Project)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(owner_id) REFERENCES users(id)`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create projects: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_name ON projects(name)`); err != nil {
		return fmt.Errorf("create projects name index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`); err != nil {
		return fmt.Errorf("create projects owner index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_projects_lock_session ON projects(lock_session_id) WHERE lock_session_id IS NOT NULL`); err != nil {
		return fmt.Errorf("create projects lock index: %w", err)
	}
	if IsPostgreSQL(db) {
		if _, err := db.Exec(`ALTER TABLE projects ADD CONSTRAINT fk_projects_owner_id FOREIGN KEY (owner_id) REFERENCES users(id)`); err != nil {
			return fmt.Errorf("add projects owner FK: %w", err)
		}
		if _, err := db.Exec(`ALTER TABLE projects ADD CONSTRAINT chk_projects_version_positive CHECK (version >= 1)`); err != nil {
			return fmt.Errorf("add projects version check: %w", err)
		}
	}
	fmt.Println(" OK")

	// Accesses
	fmt.Print(" [up] creating accesses table...")
	q = db.NewCreateTable().
		Model((*models.Access)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(project_id) REFERENCES projects(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create accesses: %w", err)
	}
	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_accesses_user_project ON accesses(user_id, project_id)`); err != nil {
		return fmt.Errorf("create accesses unique index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_accesses_project ON accesses(project_id)`); err != nil {
		return fmt.Errorf("create accesses project index: %w", err)
	}
	if IsPostgreSQL(db) {
		if _, err := db.Exec(`ALTER TABLE accesses ADD CONSTRAINT fk_accesses_user_id FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE`); err != nil {
			return fmt.Errorf("add accesses user FK: %w", err)
		}
		if _, err := db.Exec(`ALTER TABLE accesses ADD CONSTRAINT fk_accesses_project_id FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE`); err != nil {
			return fmt.Errorf("add accesses project FK: %w", err)
		}
		if _, err := db.Exec(`ALTER TABLE accesses ADD CONSTRAINT chk_accesses_role CHECK (role IN ('reader', 'editor'))`); err != nil {
			return fmt.Errorf("add accesses role check: %w", err)
		}
	}
	fmt.Println(" OK")

	// Queries
	fmt.Print(" [up] creating queries table...")
	q = db.NewCreateTable().
		Model((*models.Query)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(project_id) REFERENCES projects(id) ON DELETE CASCADE`)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("create queries: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_queries_project ON queries(project_id)`); err != nil {
		return fmt.Errorf("create queries project index: %w", err)
	}
	if IsPostgreSQL(db) {
		if _, err := db.Exec(`ALTER TABLE queries ADD CONSTRAINT fk_queries_project_id FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE`); err != nil {
			return fmt.Errorf("add queries project FK: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260115000000 drops all tables in dependency order.
func down_20260115000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping all tables...")

	tables := []string{
		"queries",
		"accesses",
		"sessions",
		"projects",
		"users",
	}
	for _, table := range tables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if IsPostgreSQL(db) {
			stmt += " CASCADE"
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}

	fmt.Println(" OK")
	return nil
}
