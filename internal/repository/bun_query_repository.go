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

// BunQueryRepository persists queries using Bun ORM.
type BunQueryRepository struct {
	db *bun.DB
}

// NewBunQueryRepository constructs a repository backed by Bun.
func NewBunQueryRepository(db *bun.DB) *BunQueryRepository {
	return &BunQueryRepository{db: db}
}

// Create inserts a new query. Queries are born outdated with no result.
func (r *BunQueryRepository) Create(ctx context.Context, query *models.Query) error {
	if err := query.ValidateForCreate(); err != nil {
		return apperr.Validation(err.Error())
	}

	now := time.Now()
	query.Result = nil
	query.Outdated = true
	query.CreatedAt = now
	query.UpdatedAt = now

	_, err := r.db.NewInsert().Model(query).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}

	return nil
}

// GetByID fetches a query by ID.
func (r *BunQueryRepository) GetByID(ctx context.Context, id string) (*models.Query, error) {
	query := new(models.Query)
	err := r.db.NewSelect().Model(query).Where("q.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("query query: %w", err)
	}
	return query, nil
}

// ListByProject returns every query of a project, oldest first.
func (r *BunQueryRepository) ListByProject(ctx context.Context, projectID string) ([]models.Query, error) {
	var queries []models.Query
	err := r.db.NewSelect().
		Model(&queries).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	if queries == nil {
		queries = []models.Query{}
	}
	return queries, nil
}

// UpdateText rewrites the query text. A rewritten query asks a new
// question, so any stored result is dropped and it goes back to
// outdated in the same statement.
func (r *BunQueryRepository) UpdateText(ctx context.Context, id, text string, now time.Time) error {
	if text == "" || len(text) > 4096 {
		return apperr.Validation("text must be between 1 and 4096 characters")
	}

	result, err := r.db.NewUpdate().
		Model((*models.Query)(nil)).
		Set("text = ?", text).
		Set("result = NULL").
		Set("outdated = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update query text: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("query: %w", apperr.ErrNotFound)
	}
	return nil
}

// Delete removes a query.
func (r *BunQueryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Query)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("query: %w", apperr.ErrNotFound)
	}
	return nil
}

// ReportResult stores a checker result only while the project still
// sits at the version the result was computed against. A result that
// lost the race to a document write is dropped, never stored fresh.
func (r *BunQueryRepository) ReportResult(ctx context.Context, queryID, projectID string, projectVersion int64, result []byte, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.Query)(nil)).
		Set("result = ?", result).
		Set("outdated = ?", false).
		Set("updated_at = ?", now).
		Where("id = ?", queryID).
		Where("project_id = ?", projectID).
		Where("EXISTS (SELECT 1 FROM projects WHERE id = ? AND version = ?)", projectID, projectVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("report result: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		if _, err := r.GetByID(ctx, queryID); err != nil {
			return err
		}
		return fmt.Errorf("project moved past version %d: %w", projectVersion, apperr.ErrResultStale)
	}
	return nil
}
