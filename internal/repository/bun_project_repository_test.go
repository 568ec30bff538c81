package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

const (
	testLease    = 10 * time.Minute
	testMaxLease = 2 * time.Hour
)

func TestBunProjectRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")

	t.Run("create starts at version 1 unlocked", func(t *testing.T) {
		project := createTestProject(t, db, owner.ID, "traffic-light")

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Nil(t, got.LockSessionID)
		assert.Nil(t, got.LockExpiresAt)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := repo.Create(ctx, &models.Project{
			ID:       bunx.NewUUIDv7(),
			Name:     "traffic-light",
			OwnerID:  owner.ID,
			Document: []byte(`{}`),
		})
		assert.ErrorIs(t, err, apperr.ErrDuplicate)
	})

	t.Run("invalid document rejected", func(t *testing.T) {
		err := repo.Create(ctx, &models.Project{
			ID:       bunx.NewUUIDv7(),
			Name:     "broken",
			OwnerID:  owner.ID,
			Document: []byte(`{not json`),
		})
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestBunProjectRepository_AcquireLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "coffee-machine")
	holder := createTestSession(t, db, owner.ID)
	rival := createTestSession(t, db, owner.ID)
	now := time.Now()

	t.Run("acquire free lock", func(t *testing.T) {
		got, err := repo.AcquireLock(ctx, project.ID, holder.ID, now, testLease, testMaxLease)
		require.NoError(t, err)
		require.NotNil(t, got.LockSessionID)
		assert.Equal(t, holder.ID, *got.LockSessionID)
		assert.WithinDuration(t, now.Add(testLease), *got.LockExpiresAt, time.Second)
	})

	t.Run("live lock blocks other sessions", func(t *testing.T) {
		_, err := repo.AcquireLock(ctx, project.ID, rival.ID, now.Add(time.Minute), testLease, testMaxLease)
		assert.ErrorIs(t, err, apperr.ErrLockHeldByOther)
	})

	t.Run("re-acquire by holder is idempotent", func(t *testing.T) {
		got, err := repo.AcquireLock(ctx, project.ID, holder.ID, now.Add(time.Minute), testLease, testMaxLease)
		require.NoError(t, err)
		assert.Equal(t, holder.ID, *got.LockSessionID)
	})

	t.Run("lapsed lease is taken over", func(t *testing.T) {
		after := now.Add(time.Minute + testLease)
		got, err := repo.AcquireLock(ctx, project.ID, rival.ID, after, testLease, testMaxLease)
		require.NoError(t, err)
		assert.Equal(t, rival.ID, *got.LockSessionID)
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := repo.AcquireLock(ctx, "00000000-0000-7000-8000-000000000000", holder.ID, now, testLease, testMaxLease)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestBunProjectRepository_AcquireLockExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")

	// race fires one acquire per session at the same instant and
	// reports how many succeeded; every loser must see the conflict
	// sentinel, never a partial lock state.
	race := func(t *testing.T, projectID string, sessions []*models.Session, now time.Time) int {
		t.Helper()

		var wg sync.WaitGroup
		var wins atomic.Int64
		for _, sess := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AcquireLock(ctx, projectID, sess.ID, now, testLease, testMaxLease)
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, apperr.ErrLockHeldByOther)
			}()
		}
		wg.Wait()
		return int(wins.Load())
	}

	sessions := make([]*models.Session, 8)
	for i := range sessions {
		sessions[i] = createTestSession(t, db, owner.ID)
	}
	now := time.Now()

	t.Run("racing a free lock", func(t *testing.T) {
		project := createTestProject(t, db, owner.ID, "uncontested")
		assert.Equal(t, 1, race(t, project.ID, sessions, now))

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LockSessionID)
		assert.True(t, got.LockedAt(now))
	})

	t.Run("racing a stale lock", func(t *testing.T) {
		project := createTestProject(t, db, owner.ID, "contested")
		lapsed := createTestSession(t, db, owner.ID)
		_, err := repo.AcquireLock(ctx, project.ID, lapsed.ID, now.Add(-2*testLease), testLease, testMaxLease)
		require.NoError(t, err)

		assert.Equal(t, 1, race(t, project.ID, sessions, now))

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LockSessionID)
		assert.NotEqual(t, lapsed.ID, *got.LockSessionID, "takeover replaces the lapsed holder")
	})
}

func TestBunProjectRepository_RenewLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "elevator")
	holder := createTestSession(t, db, owner.ID)
	rival := createTestSession(t, db, owner.ID)
	now := time.Now()

	_, err := repo.AcquireLock(ctx, project.ID, holder.ID, now, testLease, testMaxLease)
	require.NoError(t, err)

	t.Run("renew extends a live lease", func(t *testing.T) {
		at := now.Add(5 * time.Minute)
		got, err := repo.RenewLock(ctx, project.ID, holder.ID, at, testLease, testMaxLease)
		require.NoError(t, err)
		assert.WithinDuration(t, at.Add(testLease), *got.LockExpiresAt, time.Second)
	})

	t.Run("renew clamps to the acquisition cap", func(t *testing.T) {
		at := now.Add(testMaxLease - time.Minute)
		// Keep the lease alive up to the cap boundary first.
		for elapsed := 5 * time.Minute; elapsed < testMaxLease; elapsed += 5 * time.Minute {
			_, err := repo.RenewLock(ctx, project.ID, holder.ID, now.Add(elapsed), testLease, testMaxLease)
			require.NoError(t, err)
		}
		got, err := repo.RenewLock(ctx, project.ID, holder.ID, at, testLease, testMaxLease)
		require.NoError(t, err)
		assert.WithinDuration(t, now.Add(testMaxLease), *got.LockExpiresAt, time.Second)
	})

	t.Run("renew by non-holder fails", func(t *testing.T) {
		_, err := repo.RenewLock(ctx, project.ID, rival.ID, now.Add(time.Minute), testLease, testMaxLease)
		assert.ErrorIs(t, err, apperr.ErrLockHeldByOther)
	})

	t.Run("renew past the cap fails", func(t *testing.T) {
		_, err := repo.RenewLock(ctx, project.ID, holder.ID, now.Add(testMaxLease+time.Minute), testLease, testMaxLease)
		require.Error(t, err)
	})
}

func TestBunProjectRepository_ReleaseLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "vending")
	holder := createTestSession(t, db, owner.ID)
	rival := createTestSession(t, db, owner.ID)
	now := time.Now()

	_, err := repo.AcquireLock(ctx, project.ID, holder.ID, now, testLease, testMaxLease)
	require.NoError(t, err)

	t.Run("release by non-holder is a no-op", func(t *testing.T) {
		require.NoError(t, repo.ReleaseLock(ctx, project.ID, rival.ID))

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LockSessionID)
		assert.Equal(t, holder.ID, *got.LockSessionID)
	})

	t.Run("release by holder frees the lock", func(t *testing.T) {
		require.NoError(t, repo.ReleaseLock(ctx, project.ID, holder.ID))

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LockSessionID)
		assert.Nil(t, got.LockAcquiredAt)
		assert.Nil(t, got.LockExpiresAt)
	})

	t.Run("double release is a no-op", func(t *testing.T) {
		require.NoError(t, repo.ReleaseLock(ctx, project.ID, holder.ID))
	})

	t.Run("late release after takeover leaves the new holder alone", func(t *testing.T) {
		_, err := repo.AcquireLock(ctx, project.ID, rival.ID, now, testLease, testMaxLease)
		require.NoError(t, err)

		require.NoError(t, repo.ReleaseLock(ctx, project.ID, holder.ID))

		got, err := repo.GetByID(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LockSessionID)
		assert.Equal(t, rival.ID, *got.LockSessionID)
	})

	t.Run("unknown project reports not-found", func(t *testing.T) {
		err := repo.ReleaseLock(ctx, bunx.NewUUIDv7(), holder.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestBunProjectRepository_ReleaseLocksBySessions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	p1 := createTestProject(t, db, owner.ID, "one")
	p2 := createTestProject(t, db, owner.ID, "two")
	p3 := createTestProject(t, db, owner.ID, "three")
	s1 := createTestSession(t, db, owner.ID)
	s2 := createTestSession(t, db, owner.ID)
	s3 := createTestSession(t, db, owner.ID)
	now := time.Now()

	for _, pair := range []struct {
		project *models.Project
		session *models.Session
	}{{p1, s1}, {p2, s2}, {p3, s3}} {
		_, err := repo.AcquireLock(ctx, pair.project.ID, pair.session.ID, now, testLease, testMaxLease)
		require.NoError(t, err)
	}

	freed, err := repo.ReleaseLocksBySessions(ctx, []string{s1.ID, s2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), freed)

	got, err := repo.GetByID(ctx, p3.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LockSessionID, "uninvolved lock survives")
}

func TestBunProjectRepository_UpdateDocument(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunProjectRepository(db)
	queries := NewBunQueryRepository(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner")
	project := createTestProject(t, db, owner.ID, "gate")
	holder := createTestSession(t, db, owner.ID)
	rival := createTestSession(t, db, owner.ID)
	now := time.Now()

	query := &models.Query{ID: bunx.NewUUIDv7(), ProjectID: project.ID, Text: "refinement: A <= B"}
	require.NoError(t, queries.Create(ctx, query))
	require.NoError(t, queries.ReportResult(ctx, query.ID, project.ID, 1, []byte(`{"satisfied":true}`), now))

	t.Run("write without the lock fails", func(t *testing.T) {
		_, _, err := repo.UpdateDocument(ctx, project.ID, holder.ID, []byte(`{"v":2}`), now)
		assert.ErrorIs(t, err, apperr.ErrNotLockHolder)
	})

	t.Run("write bumps version and invalidates queries", func(t *testing.T) {
		_, err := repo.AcquireLock(ctx, project.ID, holder.ID, now, testLease, testMaxLease)
		require.NoError(t, err)

		version, invalidated, err := repo.UpdateDocument(ctx, project.ID, holder.ID, []byte(`{"v":2}`), now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
		assert.Equal(t, int64(1), invalidated)

		got, err := queries.GetByID(ctx, query.ID)
		require.NoError(t, err)
		assert.True(t, got.Outdated)
		assert.Nil(t, got.Result)
	})

	t.Run("write by non-holder fails", func(t *testing.T) {
		_, _, err := repo.UpdateDocument(ctx, project.ID, rival.ID, []byte(`{"v":3}`), now)
		assert.ErrorIs(t, err, apperr.ErrLockHeldByOther)
	})

	t.Run("write after lease lapse fails", func(t *testing.T) {
		_, _, err := repo.UpdateDocument(ctx, project.ID, holder.ID, []byte(`{"v":3}`), now.Add(testLease+time.Minute))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrStaleLock)
	})
}
