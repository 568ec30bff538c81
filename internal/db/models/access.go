package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Role is the rights level recorded in an explicit access grant.
// The project owner holds implicit owner rights and never has a row.
type Role string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
)

// ParseRole validates a wire-format role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleReader, RoleEditor:
		return Role(s), nil
	}
	return "", errors.New("role must be 'reader' or 'editor'")
}

// Access grants a user a rights level on a project. At most one row
// exists per (user, project) pair; re-granting replaces the role.
type Access struct {
	bun.BaseModel `bun:"table:accesses,alias:a"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull,type:uuid"`
	ProjectID string    `bun:"project_id,notnull,type:uuid"`
	Role      Role      `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (a *Access) ValidateForCreate() error {
	if a.UserID == "" {
		return errors.New("user_id is required")
	}
	if a.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	return nil
}
