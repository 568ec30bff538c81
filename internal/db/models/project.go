package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Project represents a verification-model project. The document blob
// is opaque to the coordinator beyond schema validation; the version
// counter increments on every successful write and is the sole
// freshness reference for query results.
//
// The nullable (lock_session_id, lock_expires_at) pair is the edit
// lock: both set means locked until the lease expires, both NULL
// means free. The pair is only ever mutated together.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID             string     `bun:"id,pk,type:uuid"`
	Name           string     `bun:"name,notnull,unique"`
	OwnerID        string     `bun:"owner_id,notnull,type:uuid"`
	Document       []byte     `bun:"document,notnull"`
	Version        int64      `bun:"version,notnull,default:1"`
	LockSessionID  *string    `bun:"lock_session_id,type:uuid"`
	LockAcquiredAt *time.Time `bun:"lock_acquired_at"`
	LockExpiresAt  *time.Time `bun:"lock_expires_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (p *Project) ValidateForCreate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if len(p.Name) > 128 {
		return errors.New("name exceeds maximum length")
	}
	if p.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	if len(p.Document) == 0 || !json.Valid(p.Document) {
		return errors.New("document must be valid JSON")
	}
	if (p.LockSessionID == nil) != (p.LockExpiresAt == nil) {
		return errors.New("lock fields must be set or cleared together")
	}
	return nil
}

// LockedAt reports whether a live lease exists at the given instant.
func (p *Project) LockedAt(now time.Time) bool {
	return p.LockSessionID != nil && p.LockExpiresAt != nil && p.LockExpiresAt.After(now)
}

// HeldBy reports whether the live lease at now belongs to sessionID.
func (p *Project) HeldBy(sessionID string, now time.Time) bool {
	return p.LockedAt(now) && *p.LockSessionID == sessionID
}
