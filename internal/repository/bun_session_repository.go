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

// BunSessionRepository persists sessions using Bun ORM.
type BunSessionRepository struct {
	db *bun.DB
}

// NewBunSessionRepository constructs a repository backed by Bun.
func NewBunSessionRepository(db *bun.DB) *BunSessionRepository {
	return &BunSessionRepository{db: db}
}

// Create inserts a new session row.
func (r *BunSessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = now
	}

	_, err := r.db.NewInsert().Model(session).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("session token collision: %w", apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByTokenHash fetches a session by the SHA-256 hash of its bearer
// token. Liveness is not checked here; callers use Touch for that.
func (r *BunSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().Model(session).Where("token_hash = ?", tokenHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", apperr.ErrSessionExpired)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// Touch slides the activity window with a single conditional update.
// The guard re-checks liveness so a session that idled out or hit its
// lifetime cap between lookup and update cannot be resurrected.
func (r *BunSessionRepository) Touch(ctx context.Context, id string, now time.Time, idleTimeout, maxLifetime time.Duration) (*models.Session, error) {
	q := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("last_activity_at = ?", now).
		Where("id = ?", id).
		Where("last_activity_at > ?", now.Add(-idleTimeout))
	if maxLifetime > 0 {
		q = q.Where("created_at > ?", now.Add(-maxLifetime))
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("session: %w", apperr.ErrSessionExpired)
	}

	session := new(models.Session)
	if err := r.db.NewSelect().Model(session).Where("sess.id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	return session, nil
}

// Delete removes a session by ID.
func (r *BunSessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session: %w", apperr.ErrNotFound)
	}

	return nil
}

// DeleteByUserID removes every session of a user and returns the
// removed IDs.
func (r *BunSessionRepository) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.deleteReturningIDs(ctx, r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("user_id = ?", userID))
	if err != nil {
		return nil, fmt.Errorf("delete sessions for user: %w", err)
	}
	return ids, nil
}

// DeleteExpired removes every session dead at now and returns the
// removed IDs so the caller can free the edit locks they held.
func (r *BunSessionRepository) DeleteExpired(ctx context.Context, now time.Time, idleTimeout, maxLifetime time.Duration) ([]string, error) {
	q := r.db.NewDelete().Model((*models.Session)(nil))
	if maxLifetime > 0 {
		q = q.Where("last_activity_at <= ? OR created_at <= ?", now.Add(-idleTimeout), now.Add(-maxLifetime))
	} else {
		q = q.Where("last_activity_at <= ?", now.Add(-idleTimeout))
	}

	ids, err := r.deleteReturningIDs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	return ids, nil
}

func (r *BunSessionRepository) deleteReturningIDs(ctx context.Context, q *bun.DeleteQuery) ([]string, error) {
	var ids []string
	if err := q.Returning("id").Scan(ctx, &ids); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
