package repository

import (
	"context"
	"time"

	"github.com/modelhub-io/modelhub/internal/db/models"
)

// UserRepository exposes persistence operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Disable(ctx context.Context, id string) error
}

// SessionRepository exposes persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// Touch slides the activity window in a single conditional update:
	// it succeeds only while the session is still live under both the
	// idle timeout and the absolute lifetime cap at now. A zero
	// maxLifetime disables the cap.
	Touch(ctx context.Context, id string, now time.Time, idleTimeout, maxLifetime time.Duration) (*models.Session, error)

	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) ([]string, error)

	// DeleteExpired removes every session dead at now and returns the
	// removed IDs so callers can release the edit locks they held.
	DeleteExpired(ctx context.Context, now time.Time, idleTimeout, maxLifetime time.Duration) ([]string, error)
}

// ProjectRepository exposes persistence operations for projects,
// including the edit lock lease and the versioned document write.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	ListForUser(ctx context.Context, userID string) ([]models.Project, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error

	// AcquireLock takes the edit lock when it is free or its lease has
	// lapsed, in one conditional update.
	AcquireLock(ctx context.Context, projectID, sessionID string, now time.Time, lease, maxLease time.Duration) (*models.Project, error)

	// RenewLock extends a live lease held by sessionID, clamped to the
	// acquisition-relative maximum when maxLease is positive.
	RenewLock(ctx context.Context, projectID, sessionID string, now time.Time, lease, maxLease time.Duration) (*models.Project, error)

	// ReleaseLock clears a lease held by sessionID; a no-op when the
	// session does not hold the lock. ErrNotFound for unknown projects.
	ReleaseLock(ctx context.Context, projectID, sessionID string) error

	// LockHolder resolves the username and expiry behind a live lease.
	LockHolder(ctx context.Context, projectID string, now time.Time) (string, time.Time, error)

	// ReleaseLocksBySessions frees every lock held by any of the given
	// sessions, live or lapsed. Used when sessions end.
	ReleaseLocksBySessions(ctx context.Context, sessionIDs []string) (int64, error)

	// UpdateDocument replaces the document and bumps the version while
	// sessionID holds a live lease, then marks every query of the
	// project outdated and clears their results, atomically. Returns
	// the new version and the number of queries invalidated.
	UpdateDocument(ctx context.Context, projectID, sessionID string, document []byte, now time.Time) (int64, int64, error)
}

// AccessRepository exposes persistence operations for access grants.
type AccessRepository interface {
	// Upsert inserts a grant or replaces the role of an existing one.
	Upsert(ctx context.Context, access *models.Access) error
	Get(ctx context.Context, userID, projectID string) (*models.Access, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Access, error)
	Delete(ctx context.Context, userID, projectID string) error
}

// QueryRepository exposes persistence operations for queries.
type QueryRepository interface {
	Create(ctx context.Context, query *models.Query) error
	GetByID(ctx context.Context, id string) (*models.Query, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Query, error)

	// UpdateText rewrites the query text, which also resets it to
	// outdated with no result.
	UpdateText(ctx context.Context, id, text string, now time.Time) error

	Delete(ctx context.Context, id string) error

	// ReportResult stores a checker result only while the project is
	// still at the version the result was computed against.
	ReportResult(ctx context.Context, queryID, projectID string, projectVersion int64, result []byte, now time.Time) error
}
