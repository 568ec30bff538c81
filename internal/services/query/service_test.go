package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"github.com/modelhub-io/modelhub/internal/services/checker"
)

const testSecret = "unit-test-secret"

type fixture struct {
	svc     *Service
	db      *bun.DB
	owner   *models.User
	reader  *models.User
	project *models.Project
}

// setupFixture wires the service against an in-memory database and the
// given checker handler. handler may be nil for tests that never run.
func setupFixture(t *testing.T, handler http.HandlerFunc) *fixture {
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
	accessSvc := access.NewService(repository.NewBunAccessRepository(db), users, enforcer)

	cfg := config.CheckerConfig{SharedSecret: testSecret, RequestTimeout: 5 * time.Second}
	var client *checker.Client
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		cfg.URL = srv.URL
		client = checker.NewClient(cfg)
	}

	svc := NewService(repository.NewBunQueryRepository(db), projects, accessSvc, client, cfg, "http://hub.test")

	f := &fixture{svc: svc, db: db}
	for name, target := range map[string]**models.User{"owner": &f.owner, "reader": &f.reader} {
		u := &models.User{
			ID:           bunx.NewUUIDv7(),
			Email:        name + "@example.com",
			Username:     name,
			PasswordHash: "x",
		}
		require.NoError(t, users.Create(ctx, u))
		*target = u
	}

	f.project = &models.Project{
		ID:       bunx.NewUUIDv7(),
		Name:     "gate",
		OwnerID:  f.owner.ID,
		Document: []byte(`{"components":[]}`),
	}
	require.NoError(t, projects.Create(ctx, f.project))
	require.NoError(t, repository.NewBunAccessRepository(db).Upsert(ctx, &models.Access{
		ID:        bunx.NewUUIDv7(),
		UserID:    f.reader.ID,
		ProjectID: f.project.ID,
		Role:      models.RoleReader,
	}))

	return f
}

func TestService_CreateAndList(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.owner.ID, f.project.ID, "reachability: E<> Gate.Open")
	require.NoError(t, err)
	assert.True(t, created.Outdated)

	t.Run("reader can list but not create", func(t *testing.T) {
		queries, err := f.svc.List(ctx, f.reader.ID, f.project.ID)
		require.NoError(t, err)
		assert.Len(t, queries, 1)

		_, err = f.svc.Create(ctx, f.reader.ID, f.project.ID, "nope")
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})
}

func TestService_RunSynchronous(t *testing.T) {
	var captured checker.Request
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(checker.Response{Result: json.RawMessage(`{"satisfied":true}`)})
	})
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.owner.ID, f.project.ID, "refinement: A <= B")
	require.NoError(t, err)

	outcome, err := f.svc.Run(ctx, f.owner.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.JSONEq(t, `{"satisfied":true}`, string(outcome.Result))
	assert.Equal(t, int64(1), outcome.ProjectVersion)

	t.Run("dispatch carried a verifiable callback token", func(t *testing.T) {
		claims, err := auth.VerifyCheckerToken([]byte(testSecret), captured.CallbackToken)
		require.NoError(t, err)
		assert.Equal(t, created.ID, claims.QueryID)
		assert.Equal(t, f.project.ID, claims.ProjectID)
		assert.Equal(t, int64(1), claims.ProjectVersion)
	})

	t.Run("query is fresh afterwards", func(t *testing.T) {
		got, err := f.svc.Get(ctx, f.owner.ID, created.ID)
		require.NoError(t, err)
		assert.False(t, got.Outdated)
	})

	t.Run("reader may run but not edit", func(t *testing.T) {
		_, err := f.svc.Run(ctx, f.reader.ID, created.ID)
		require.NoError(t, err)

		err = f.svc.UpdateText(ctx, f.reader.ID, created.ID, "changed")
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	})
}

func TestService_RunAsynchronousAccepted(t *testing.T) {
	f := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.owner.ID, f.project.ID, "consistency: Machine")
	require.NoError(t, err)

	outcome, err := f.svc.Run(ctx, f.owner.ID, created.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Completed)

	got, err := f.svc.Get(ctx, f.owner.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Outdated, "stays outdated until the callback lands")
}

func TestService_RunWithoutChecker(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.owner.ID, f.project.ID, "q")
	require.NoError(t, err)

	_, err = f.svc.Run(ctx, f.owner.ID, created.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestService_ReportResult(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.owner.ID, f.project.ID, "q")
	require.NoError(t, err)

	claims := &auth.CheckerClaims{
		QueryID:        created.ID,
		ProjectID:      f.project.ID,
		ProjectVersion: 1,
	}

	t.Run("fresh result is stored", func(t *testing.T) {
		require.NoError(t, f.svc.ReportResult(ctx, claims, json.RawMessage(`{"satisfied":false}`)))

		got, err := f.svc.Get(ctx, f.owner.ID, created.ID)
		require.NoError(t, err)
		assert.False(t, got.Outdated)
	})

	t.Run("invalid payload rejected", func(t *testing.T) {
		err := f.svc.ReportResult(ctx, claims, json.RawMessage(`{broken`))
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("result for a superseded version is dropped", func(t *testing.T) {
		sessions := repository.NewBunSessionRepository(f.db)
		_, hash, err := auth.GenerateBearerToken()
		require.NoError(t, err)
		sess := &models.Session{ID: bunx.NewUUIDv7(), UserID: f.owner.ID, TokenHash: hash}
		require.NoError(t, sessions.Create(ctx, sess))

		projects := repository.NewBunProjectRepository(f.db)
		now := time.Now()
		_, err = projects.AcquireLock(ctx, f.project.ID, sess.ID, now, 10*time.Minute, 0)
		require.NoError(t, err)
		_, _, err = projects.UpdateDocument(ctx, f.project.ID, sess.ID, []byte(`{"components":[1]}`), now)
		require.NoError(t, err)

		err = f.svc.ReportResult(ctx, claims, json.RawMessage(`{"satisfied":true}`))
		assert.ErrorIs(t, err, apperr.ErrResultStale)
	})
}
