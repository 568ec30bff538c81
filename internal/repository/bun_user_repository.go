package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

// BunUserRepository persists users using Bun ORM.
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository constructs a repository backed by Bun.
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user row.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.ValidateForCreate(); err != nil {
		return apperr.Validation(err.Error())
	}

	user.CreatedAt = time.Now()

	_, err := r.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("user with email or username already exists: %w", apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID fetches a user by ID.
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "u.id = ?", id)
}

// GetByEmail fetches a user by email address.
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "u.email = ?", email)
}

// GetByUsername fetches a user by username.
func (r *BunUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "u.username = ?", username)
}

func (r *BunUserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().Model(user).Where(where, arg).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// List returns all users ordered by creation time.
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.NewSelect().Model(&users).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Disable marks a user account disabled. Idempotent for accounts that
// are already disabled.
func (r *BunUserRepository) Disable(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("disabled_at = ?", time.Now()).
		Where("id = ?", id).
		Where("disabled_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish "already disabled" from "no such user".
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "23505")
}
