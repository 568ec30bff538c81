package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

// BunProjectRepository persists projects using Bun ORM. All lock and
// version transitions are single conditional updates so concurrent
// writers race on RowsAffected instead of read-modify-write windows.
type BunProjectRepository struct {
	db *bun.DB
}

// NewBunProjectRepository constructs a repository backed by Bun.
func NewBunProjectRepository(db *bun.DB) *BunProjectRepository {
	return &BunProjectRepository{db: db}
}

// Create inserts a new project row at version 1, unlocked.
func (r *BunProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if err := project.ValidateForCreate(); err != nil {
		return apperr.Validation(err.Error())
	}

	now := time.Now()
	project.Version = 1
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := r.db.NewInsert().Model(project).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("project with name '%s' already exists: %w", project.Name, apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert project: %w", err)
	}

	return nil
}

// GetByID fetches a project by ID.
func (r *BunProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	return r.getOne(ctx, "p.id = ?", id)
}

// GetByName fetches a project by its unique name.
func (r *BunProjectRepository) GetByName(ctx context.Context, name string) (*models.Project, error) {
	return r.getOne(ctx, "p.name = ?", name)
}

func (r *BunProjectRepository) getOne(ctx context.Context, where string, arg any) (*models.Project, error) {
	project := new(models.Project)
	err := r.db.NewSelect().Model(project).Where(where, arg).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("query project: %w", err)
	}
	return project, nil
}

// LockHolder resolves the username behind a live lease so a contested
// acquire can report who holds the lock. ErrNotFound when the project
// does not exist or carries no live lease at now.
func (r *BunProjectRepository) LockHolder(ctx context.Context, projectID string, now time.Time) (string, time.Time, error) {
	var holder struct {
		Username  string    `bun:"username"`
		ExpiresAt time.Time `bun:"lock_expires_at"`
	}
	err := r.db.NewSelect().
		Model((*models.Project)(nil)).
		Column("u.username", "p.lock_expires_at").
		Join("JOIN sessions AS s ON s.id = p.lock_session_id").
		Join("JOIN users AS u ON u.id = s.user_id").
		Where("p.id = ?", projectID).
		Where("p.lock_expires_at > ?", now).
		Scan(ctx, &holder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, fmt.Errorf("lock holder: %w", apperr.ErrNotFound)
		}
		return "", time.Time{}, fmt.Errorf("query lock holder: %w", err)
	}
	return holder.Username, holder.ExpiresAt, nil
}

// ListForUser returns every project the user owns or holds a grant on,
// newest first.
func (r *BunProjectRepository) ListForUser(ctx context.Context, userID string) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.NewSelect().
		Model(&projects).
		Where("p.owner_id = ? OR p.id IN (SELECT project_id FROM accesses WHERE user_id = ?)", userID, userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// Rename changes the project name.
func (r *BunProjectRepository) Rename(ctx context.Context, id, name string) error {
	if name == "" || len(name) > 128 {
		return apperr.Validation("name must be between 1 and 128 characters")
	}

	result, err := r.db.NewUpdate().
		Model((*models.Project)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("project with name '%s' already exists: %w", name, apperr.ErrDuplicate)
		}
		return fmt.Errorf("rename project: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project: %w", apperr.ErrNotFound)
	}
	return nil
}

// Delete removes a project. Grants and queries go with it via cascade.
func (r *BunProjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Project)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project: %w", apperr.ErrNotFound)
	}
	return nil
}

// AcquireLock takes the edit lock when it is free or its lease has
// lapsed. A lapsed lease is taken over silently; the previous holder
// finds out on its next guarded write.
func (r *BunProjectRepository) AcquireLock(ctx context.Context, projectID, sessionID string, now time.Time, lease, maxLease time.Duration) (*models.Project, error) {
	expiresAt := now.Add(lease)
	if maxLease > 0 && lease > maxLease {
		expiresAt = now.Add(maxLease)
	}

	result, err := r.db.NewUpdate().
		Model((*models.Project)(nil)).
		Set("lock_session_id = ?", sessionID).
		Set("lock_acquired_at = ?", now).
		Set("lock_expires_at = ?", expiresAt).
		Where("id = ?", projectID).
		Where("lock_session_id IS NULL OR lock_session_id = ? OR lock_expires_at <= ?", sessionID, now).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		current, lookupErr := r.GetByID(ctx, projectID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if current.LockedAt(now) {
			return nil, fmt.Errorf("project is locked by another session: %w", apperr.ErrLockHeldByOther)
		}
		return nil, fmt.Errorf("project: %w", apperr.ErrNotFound)
	}

	return r.GetByID(ctx, projectID)
}

// RenewLock extends a live lease held by sessionID. With a positive
// maxLease the new expiry never exceeds acquisition plus maxLease, so
// a holder cannot keep a project locked forever by renewing.
func (r *BunProjectRepository) RenewLock(ctx context.Context, projectID, sessionID string, now time.Time, lease, maxLease time.Duration) (*models.Project, error) {
	// The clamp needs lock_acquired_at, so read first and compute the
	// new expiry in Go. The update below re-checks holder and liveness,
	// so a takeover between read and write still fails cleanly.
	current, err := r.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !current.HeldBy(sessionID, now) {
		return nil, r.classifyLockFailure(ctx, projectID, sessionID, now)
	}

	expiresAt := now.Add(lease)
	if maxLease > 0 {
		limit := current.LockAcquiredAt.Add(maxLease)
		if !limit.After(now) {
			return nil, fmt.Errorf("lease reached its maximum duration: %w", apperr.ErrStaleLock)
		}
		if expiresAt.After(limit) {
			expiresAt = limit
		}
	}

	result, err := r.db.NewUpdate().
		Model((*models.Project)(nil)).
		Set("lock_expires_at = ?", expiresAt).
		Where("id = ?", projectID).
		Where("lock_session_id = ?", sessionID).
		Where("lock_expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("renew lock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, r.classifyLockFailure(ctx, projectID, sessionID, now)
	}

	return r.GetByID(ctx, projectID)
}

// ReleaseLock clears a lease held by sessionID. Releasing a lock the
// session does not hold is a no-op, so releases are idempotent and a
// takeover victim's late release never disturbs the new holder.
// ErrNotFound only when the project does not exist.
func (r *BunProjectRepository) ReleaseLock(ctx context.Context, projectID, sessionID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Project)(nil)).
		Set("lock_session_id = NULL").
		Set("lock_acquired_at = NULL").
		Set("lock_expires_at = NULL").
		Where("id = ?", projectID).
		Where("lock_session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := r.GetByID(ctx, projectID); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseLocksBySessions frees every lock held by any of the given
// sessions, live or lapsed, and returns how many were freed.
func (r *BunProjectRepository) ReleaseLocksBySessions(ctx context.Context, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.NewUpdate().
		Model((*models.Project)(nil)).
		Set("lock_session_id = NULL").
		Set("lock_acquired_at = NULL").
		Set("lock_expires_at = NULL").
		Where("lock_session_id IN (?)", bun.In(sessionIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("release locks for sessions: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// UpdateDocument replaces the document and bumps the version while
// sessionID holds a live lease, then marks every query of the project
// outdated and clears their results. Both steps commit atomically;
// there is no instant where a new document coexists with results
// computed against the old one. Returns the new version and the
// number of queries invalidated.
func (r *BunProjectRepository) UpdateDocument(ctx context.Context, projectID, sessionID string, document []byte, now time.Time) (int64, int64, error) {
	var newVersion int64
	var invalidated int64

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().
			Model((*models.Project)(nil)).
			Set("document = ?", document).
			Set("version = version + 1").
			Set("updated_at = ?", now).
			Where("id = ?", projectID).
			Where("lock_session_id = ?", sessionID).
			Where("lock_expires_at > ?", now).
			Returning("version").
			Scan(ctx, &newVersion)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.classifyLockFailure(ctx, projectID, sessionID, now)
			}
			return fmt.Errorf("update document: %w", err)
		}

		result, err := tx.NewUpdate().
			Model((*models.Query)(nil)).
			Set("outdated = ?", true).
			Set("result = NULL").
			Set("updated_at = ?", now).
			Where("project_id = ?", projectID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("invalidate queries: %w", err)
		}
		invalidated, _ = result.RowsAffected()

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return newVersion, invalidated, nil
}

// classifyLockFailure explains why a holder-guarded lock operation
// matched no row: missing project, lock held elsewhere, or a lapsed
// lease the session used to hold.
func (r *BunProjectRepository) classifyLockFailure(ctx context.Context, projectID, sessionID string, now time.Time) error {
	current, err := r.GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	switch {
	case current.HeldBy(sessionID, now):
		// The guarded update lost a race that has since resolved back
		// to us; treat as stale and let the caller retry.
		return fmt.Errorf("lock state changed concurrently: %w", apperr.ErrStaleLock)
	case current.LockedAt(now):
		return fmt.Errorf("project is locked by another session: %w", apperr.ErrLockHeldByOther)
	case current.LockSessionID != nil && *current.LockSessionID == sessionID:
		return fmt.Errorf("lease expired: %w", apperr.ErrStaleLock)
	default:
		return fmt.Errorf("session does not hold the lock: %w", apperr.ErrNotLockHolder)
	}
}
