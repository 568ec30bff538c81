package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

// BunAccessRepository persists access grants using Bun ORM.
type BunAccessRepository struct {
	db *bun.DB
}

// NewBunAccessRepository constructs a repository backed by Bun.
func NewBunAccessRepository(db *bun.DB) *BunAccessRepository {
	return &BunAccessRepository{db: db}
}

// Upsert inserts a grant or replaces the role of an existing one, so
// re-granting a user is always a role change rather than an error.
func (r *BunAccessRepository) Upsert(ctx context.Context, access *models.Access) error {
	if err := access.ValidateForCreate(); err != nil {
		return apperr.Validation(err.Error())
	}

	_, err := r.db.NewInsert().
		Model(access).
		On("CONFLICT (user_id, project_id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert access: %w", err)
	}

	return nil
}

// Get fetches the grant a user holds on a project.
func (r *BunAccessRepository) Get(ctx context.Context, userID, projectID string) (*models.Access, error) {
	access := new(models.Access)
	err := r.db.NewSelect().
		Model(access).
		Where("user_id = ?", userID).
		Where("project_id = ?", projectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access grant: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("query access: %w", err)
	}
	return access, nil
}

// ListByProject returns every grant on a project.
func (r *BunAccessRepository) ListByProject(ctx context.Context, projectID string) ([]models.Access, error) {
	var accesses []models.Access
	err := r.db.NewSelect().
		Model(&accesses).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accesses: %w", err)
	}
	if accesses == nil {
		accesses = []models.Access{}
	}
	return accesses, nil
}

// Delete revokes a grant.
func (r *BunAccessRepository) Delete(ctx context.Context, userID, projectID string) error {
	result, err := r.db.NewDelete().
		Model((*models.Access)(nil)).
		Where("user_id = ?", userID).
		Where("project_id = ?", projectID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete access: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("access grant: %w", apperr.ErrNotFound)
	}
	return nil
}
