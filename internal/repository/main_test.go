package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/migrations"
)

// setupTestDB opens an in-memory SQLite database with the full schema
// applied. Each test gets a fresh database.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.Open(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// createTestUser inserts a user with a unique email/username pair.
func createTestUser(t *testing.T, db *bun.DB, name string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           bunx.NewUUIDv7(),
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "x",
	}
	require.NoError(t, NewBunUserRepository(db).Create(context.Background(), user))
	return user
}

// createTestSession inserts a session for the given user.
func createTestSession(t *testing.T, db *bun.DB, userID string) *models.Session {
	t.Helper()

	_, hash, err := auth.GenerateBearerToken()
	require.NoError(t, err)

	session := &models.Session{
		ID:        bunx.NewUUIDv7(),
		UserID:    userID,
		TokenHash: hash,
	}
	require.NoError(t, NewBunSessionRepository(db).Create(context.Background(), session))
	return session
}

// createTestProject inserts a project owned by ownerID.
func createTestProject(t *testing.T, db *bun.DB, ownerID, name string) *models.Project {
	t.Helper()

	project := &models.Project{
		ID:       bunx.NewUUIDv7(),
		Name:     name,
		OwnerID:  ownerID,
		Document: []byte(`{"components":[]}`),
	}
	require.NoError(t, NewBunProjectRepository(db).Create(context.Background(), project))
	return project
}
