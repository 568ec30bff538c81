// Package apperr defines the recoverable error taxonomy shared by the
// service and handler layers. Every sentinel here maps to a distinct
// result code at the request boundary; none of them is fatal.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned by login when the identifier is
	// unknown, the password does not match, or the account is disabled.
	// The three cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired is returned when a token is unknown, has idled
	// past the sliding timeout, or exceeded the absolute lifetime cap.
	ErrSessionExpired = errors.New("session expired")

	// ErrAccessDenied is returned when the caller's effective rights on
	// a project are insufficient for the requested action.
	ErrAccessDenied = errors.New("access denied")

	// ErrLockHeldByOther is returned when an acquire loses to a live
	// lease held by another session. Retryable by the caller.
	ErrLockHeldByOther = errors.New("edit lock held by another session")

	// ErrNotLockHolder is returned by renew/release-class checks when
	// the session does not hold the lock (anymore).
	ErrNotLockHolder = errors.New("session does not hold the edit lock")

	// ErrStaleLock is returned when a document write is attempted after
	// the lease expired or was taken over. The caller must re-acquire.
	ErrStaleLock = errors.New("edit lock is stale")

	// ErrResultStale is returned when a reported query result was
	// computed against a superseded model version and is discarded.
	ErrResultStale = errors.New("query result is stale")

	// ErrNotFound is returned for unknown users, projects, and queries.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on unique-constraint conflicts
	// (project name, user email/username, existing grant).
	ErrDuplicate = errors.New("already exists")
)

// LockHeldError carries who holds a contested edit lock and until
// when. It unwraps to ErrLockHeldByOther so the taxonomy mapping is
// unchanged; handlers surface the holder details to the caller.
type LockHeldError struct {
	HolderUsername string
	ExpiresAt      time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("edit lock held by %s until %s", e.HolderUsername, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockHeldError) Unwrap() error {
	return ErrLockHeldByOther
}

// ValidationError reports a malformed model document or request field.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail
}

// Validation constructs a ValidationError with the given detail.
func Validation(detail string) error {
	return &ValidationError{Detail: detail}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
