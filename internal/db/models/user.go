package models

import (
	"errors"
	"net/mail"
	"time"

	"github.com/uptrace/bun"
)

// User represents a human principal. Identity fields are immutable
// once created; only disabled_at may change afterwards.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:"id,pk,type:uuid"`
	Email        string     `bun:"email,notnull,unique"`
	Username     string     `bun:"username,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	DisabledAt   *time.Time `bun:"disabled_at"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (u *User) ValidateForCreate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return errors.New("email must be a valid address")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if len(u.Username) > 64 {
		return errors.New("username exceeds maximum length")
	}
	if u.PasswordHash == "" {
		return errors.New("password_hash is required")
	}
	return nil
}

// Disabled reports whether the account has been disabled.
func (u *User) Disabled() bool {
	return u != nil && u.DisabledAt != nil
}
