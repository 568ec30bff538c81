package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

func TestBunQueryRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunQueryRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "gate")

	query := &models.Query{
		ID:        bunx.NewUUIDv7(),
		ProjectID: project.ID,
		Text:      "reachability: E<> Gate.Open",
		Result:    []byte(`{"stale":true}`),
		Outdated:  false,
	}
	require.NoError(t, repo.Create(ctx, query))

	got, err := repo.GetByID(ctx, query.ID)
	require.NoError(t, err)
	assert.True(t, got.Outdated, "new queries are born outdated")
	assert.Nil(t, got.Result, "caller-supplied results are ignored on create")
}

func TestBunQueryRepository_UpdateText(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunQueryRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "gate")
	now := time.Now()

	query := &models.Query{ID: bunx.NewUUIDv7(), ProjectID: project.ID, Text: "old text"}
	require.NoError(t, repo.Create(ctx, query))
	require.NoError(t, repo.ReportResult(ctx, query.ID, project.ID, 1, []byte(`{"satisfied":false}`), now))

	require.NoError(t, repo.UpdateText(ctx, query.ID, "new text", now))

	got, err := repo.GetByID(ctx, query.ID)
	require.NoError(t, err)
	assert.Equal(t, "new text", got.Text)
	assert.True(t, got.Outdated)
	assert.Nil(t, got.Result, "rewriting the question drops the old answer")
}

func TestBunQueryRepository_ReportResult(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunQueryRepository(db)
	projects := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "gate")
	holder := createTestSession(t, db, owner.ID)
	now := time.Now()

	query := &models.Query{ID: bunx.NewUUIDv7(), ProjectID: project.ID, Text: "refinement: A <= B"}
	require.NoError(t, repo.Create(ctx, query))

	t.Run("result at the current version is stored", func(t *testing.T) {
		require.NoError(t, repo.ReportResult(ctx, query.ID, project.ID, 1, []byte(`{"satisfied":true}`), now))

		got, err := repo.GetByID(ctx, query.ID)
		require.NoError(t, err)
		assert.False(t, got.Outdated)
		assert.JSONEq(t, `{"satisfied":true}`, string(got.Result))
	})

	t.Run("result against a superseded version is dropped", func(t *testing.T) {
		_, err := projects.AcquireLock(ctx, project.ID, holder.ID, now, testLease, testMaxLease)
		require.NoError(t, err)
		_, _, err = projects.UpdateDocument(ctx, project.ID, holder.ID, []byte(`{"v":2}`), now)
		require.NoError(t, err)

		err = repo.ReportResult(ctx, query.ID, project.ID, 1, []byte(`{"satisfied":false}`), now)
		assert.ErrorIs(t, err, apperr.ErrResultStale)

		got, err := repo.GetByID(ctx, query.ID)
		require.NoError(t, err)
		assert.True(t, got.Outdated, "stale result does not mark the query fresh")
		assert.Nil(t, got.Result)
	})

	t.Run("result for unknown query", func(t *testing.T) {
		err := repo.ReportResult(ctx, "00000000-0000-7000-8000-000000000000", project.ID, 2, []byte(`{}`), now)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestBunQueryRepository_ListByProject(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunQueryRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	p1 := createTestProject(t, db, owner.ID, "one")
	p2 := createTestProject(t, db, owner.ID, "two")

	for _, text := range []string{"first", "second"} {
		require.NoError(t, repo.Create(ctx, &models.Query{ID: bunx.NewUUIDv7(), ProjectID: p1.ID, Text: text}))
	}
	require.NoError(t, repo.Create(ctx, &models.Query{ID: bunx.NewUUIDv7(), ProjectID: p2.ID, Text: "other"}))

	got, err := repo.ListByProject(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}
