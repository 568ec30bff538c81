package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/migrations"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/services/access"
	"github.com/modelhub-io/modelhub/internal/services/validation"
)

const validDocument = `{"components":[{"name":"Machine","locations":[{"id":"L0","type":"INITIAL"}]}]}`

type fixture struct {
	svc      *Service
	db       *bun.DB
	owner    *models.User
	editor   *models.User
	reader   *models.User
	ownerSes *models.Session
	editSes  *models.Session
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.Open(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	enforcer, err := auth.InitEnforcer()
	require.NoError(t, err)

	users := repository.NewBunUserRepository(db)
	projects := repository.NewBunProjectRepository(db)
	sessions := repository.NewBunSessionRepository(db)
	accessSvc := access.NewService(repository.NewBunAccessRepository(db), users, enforcer)

	validator, err := validation.NewDocumentValidator("")
	require.NoError(t, err)

	svc, err := NewService(projects, accessSvc, validator, config.LockConfig{
		LeaseDuration:    10 * time.Minute,
		MaxLeaseDuration: 2 * time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{svc: svc, db: db}
	for name, target := range map[string]**models.User{
		"owner": &f.owner, "editor": &f.editor, "reader": &f.reader,
	} {
		u := &models.User{
			ID:           bunx.NewUUIDv7(),
			Email:        name + "@example.com",
			Username:     name,
			PasswordHash: "x",
		}
		require.NoError(t, users.Create(ctx, u))
		*target = u
	}

	for user, target := range map[*models.User]**models.Session{
		f.owner: &f.ownerSes, f.editor: &f.editSes,
	} {
		_, hash, err := auth.GenerateBearerToken()
		require.NoError(t, err)
		sess := &models.Session{ID: bunx.NewUUIDv7(), UserID: user.ID, TokenHash: hash}
		require.NoError(t, sessions.Create(ctx, sess))
		*target = sess
	}

	return f
}

func (f *fixture) createProject(t *testing.T, name string) *Summary {
	t.Helper()
	summary, err := f.svc.Create(context.Background(), f.owner.ID, name, []byte(validDocument))
	require.NoError(t, err)
	return summary
}

func (f *fixture) grant(t *testing.T, user *models.User, projectID string, role models.Role) {
	t.Helper()
	require.NoError(t, repository.NewBunAccessRepository(f.db).Upsert(context.Background(), &models.Access{
		ID:        bunx.NewUUIDv7(),
		UserID:    user.ID,
		ProjectID: projectID,
		Role:      role,
	}))
}

func TestService_Create(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	t.Run("valid project", func(t *testing.T) {
		summary := f.createProject(t, "traffic-light")
		assert.Equal(t, int64(1), summary.Version)
		assert.False(t, summary.InUse)
	})

	t.Run("schema violation rejected", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.owner.ID, "bad", []byte(`{"name":"no components"}`))
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestService_GetAndList(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	project := f.createProject(t, "visible")
	f.grant(t, f.reader, project.ID, models.RoleReader)

	t.Run("reader sees the document", func(t *testing.T) {
		detail, err := f.svc.Get(ctx, f.reader.ID, "", project.ID)
		require.NoError(t, err)
		assert.JSONEq(t, validDocument, string(detail.Document))
	})

	t.Run("outsider gets not-found", func(t *testing.T) {
		_, err := f.svc.Get(ctx, f.editor.ID, "", project.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("list shows lock status", func(t *testing.T) {
		_, err := f.svc.AcquireLock(ctx, f.owner.ID, f.ownerSes.ID, project.ID, 0)
		require.NoError(t, err)

		mine, err := f.svc.List(ctx, f.owner.ID, f.ownerSes.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.True(t, mine[0].InUse)
		assert.True(t, mine[0].HeldByMe)

		theirs, err := f.svc.List(ctx, f.reader.ID, "")
		require.NoError(t, err)
		require.Len(t, theirs, 1)
		assert.True(t, theirs[0].InUse)
		assert.False(t, theirs[0].HeldByMe)
	})
}

func TestService_LockLifecycle(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	project := f.createProject(t, "contested")
	f.grant(t, f.editor, project.ID, models.RoleEditor)
	f.grant(t, f.reader, project.ID, models.RoleReader)

	t.Run("editor acquires with a clamped lease", func(t *testing.T) {
		summary, err := f.svc.AcquireLock(ctx, f.editor.ID, f.editSes.ID, project.ID, 100*time.Hour)
		require.NoError(t, err)
		assert.True(t, summary.InUse)
		assert.True(t, summary.HeldByMe)
		require.NotNil(t, summary.LockExpiry)
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), *summary.LockExpiry, time.Minute)
	})

	t.Run("owner blocked while held", func(t *testing.T) {
		_, err := f.svc.AcquireLock(ctx, f.owner.ID, f.ownerSes.ID, project.ID, 0)
		assert.ErrorIs(t, err, apperr.ErrLockHeldByOther)

		var held *apperr.LockHeldError
		require.ErrorAs(t, err, &held)
		assert.Equal(t, "editor", held.HolderUsername)
		assert.True(t, held.ExpiresAt.After(time.Now()))
	})

	t.Run("reader cannot acquire", func(t *testing.T) {
		_, err := f.svc.AcquireLock(ctx, f.reader.ID, f.ownerSes.ID, project.ID, 0)
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})

	t.Run("holder renews and releases", func(t *testing.T) {
		_, err := f.svc.RenewLock(ctx, f.editor.ID, f.editSes.ID, project.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.ReleaseLock(ctx, f.editor.ID, f.editSes.ID, project.ID))

		summary, err := f.svc.AcquireLock(ctx, f.owner.ID, f.ownerSes.ID, project.ID, 0)
		require.NoError(t, err)
		assert.True(t, summary.HeldByMe)
	})
}

func TestService_UpdateDocument(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	project := f.createProject(t, "evolving")
	f.grant(t, f.editor, project.ID, models.RoleEditor)

	t.Run("write without lock fails", func(t *testing.T) {
		_, err := f.svc.UpdateDocument(ctx, f.editor.ID, f.editSes.ID, project.ID, []byte(validDocument))
		assert.ErrorIs(t, err, apperr.ErrNotLockHolder)
	})

	t.Run("holder writes a new version", func(t *testing.T) {
		_, err := f.svc.AcquireLock(ctx, f.editor.ID, f.editSes.ID, project.ID, 0)
		require.NoError(t, err)

		version, err := f.svc.UpdateDocument(ctx, f.editor.ID, f.editSes.ID, project.ID, []byte(validDocument))
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		detail, err := f.svc.Get(ctx, f.editor.ID, f.editSes.ID, project.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), detail.Version)
	})

	t.Run("invalid document rejected before touching the lock", func(t *testing.T) {
		_, err := f.svc.UpdateDocument(ctx, f.editor.ID, f.editSes.ID, project.ID, []byte(`{}`))
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestService_DeleteAndRename(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	project := f.createProject(t, "managed")
	f.grant(t, f.editor, project.ID, models.RoleEditor)

	t.Run("editor cannot rename or delete", func(t *testing.T) {
		err := f.svc.Rename(ctx, f.editor.ID, project.ID, "renamed")
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
		err = f.svc.Delete(ctx, f.editor.ID, project.ID)
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})

	t.Run("owner renames then deletes", func(t *testing.T) {
		require.NoError(t, f.svc.Rename(ctx, f.owner.ID, project.ID, "renamed"))
		require.NoError(t, f.svc.Delete(ctx, f.owner.ID, project.ID))

		_, err := f.svc.Get(ctx, f.owner.ID, "", project.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
