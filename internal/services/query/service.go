// Package query implements query CRUD, dispatch to the verification
// engine, and version-checked result reporting.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/services/access"
	"github.com/modelhub-io/modelhub/internal/services/checker"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

// RunOutcome describes what happened to a dispatched query run.
type RunOutcome struct {
	// Completed is true when the engine answered synchronously and the
	// result was stored fresh.
	Completed bool

	// Result holds the stored result when Completed.
	Result json.RawMessage

	// ProjectVersion is the version the run was computed against.
	ProjectVersion int64
}

// Service manages queries and their interaction with the checker.
type Service struct {
	queries  repository.QueryRepository
	projects repository.ProjectRepository
	access   *access.Service
	client   *checker.Client
	cfg      config.CheckerConfig
	baseURL  string
	metrics  *telemetry.CoordinatorMetrics
}

// NewService constructs the query service. client may be nil when no
// checker is configured; Run then fails with a validation error.
func NewService(queries repository.QueryRepository, projects repository.ProjectRepository, accessSvc *access.Service, client *checker.Client, cfg config.CheckerConfig, baseURL string) *Service {
	return &Service{
		queries:  queries,
		projects: projects,
		access:   accessSvc,
		client:   client,
		cfg:      cfg,
		baseURL:  baseURL,
	}
}

// WithMetrics attaches coordinator metrics (optional dependency).
func (s *Service) WithMetrics(m *telemetry.CoordinatorMetrics) *Service {
	s.metrics = m
	return s
}

// Create adds a query to a project. New queries are outdated until a
// run stores a fresh result.
func (s *Service) Create(ctx context.Context, userID, projectID, text string) (*models.Query, error) {
	if _, err := s.authorizedProject(ctx, userID, projectID, auth.ActionQueryCreate); err != nil {
		return nil, err
	}

	record := &models.Query{
		ID:        bunx.NewUUIDv7(),
		ProjectID: projectID,
		Text:      text,
	}
	if err := s.queries.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns all queries of a project.
func (s *Service) List(ctx context.Context, userID, projectID string) ([]models.Query, error) {
	if _, err := s.authorizedProject(ctx, userID, projectID, auth.ActionQueryRead); err != nil {
		return nil, err
	}
	return s.queries.ListByProject(ctx, projectID)
}

// Get returns one query.
func (s *Service) Get(ctx context.Context, userID, queryID string) (*models.Query, error) {
	record, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizedProject(ctx, userID, record.ProjectID, auth.ActionQueryRead); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateText rewrites a query, dropping any stored result.
func (s *Service) UpdateText(ctx context.Context, userID, queryID, text string) error {
	record, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return err
	}
	if _, err := s.authorizedProject(ctx, userID, record.ProjectID, auth.ActionQueryUpdate); err != nil {
		return err
	}
	return s.queries.UpdateText(ctx, queryID, text, time.Now())
}

// Delete removes a query.
func (s *Service) Delete(ctx context.Context, userID, queryID string) error {
	record, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return err
	}
	if _, err := s.authorizedProject(ctx, userID, record.ProjectID, auth.ActionQueryDelete); err != nil {
		return err
	}
	return s.queries.Delete(ctx, queryID)
}

// Run dispatches a query to the checker against the project's current
// document. A synchronous answer is stored immediately; otherwise the
// engine reports later through the signed callback. Either way the
// result only lands while the project is still at the dispatched
// version.
func (s *Service) Run(ctx context.Context, userID, queryID string) (*RunOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "hubapi/services/query", "query.Run",
		attribute.String(telemetry.AttrQueryID, queryID),
		attribute.String(telemetry.AttrUserID, userID),
	)
	defer span.End()

	record, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	project, err := s.authorizedProject(ctx, userID, record.ProjectID, auth.ActionQueryRun)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String(telemetry.AttrProjectID, project.ID),
		attribute.Int64(telemetry.AttrProjectVersion, project.Version),
	)

	if s.client == nil {
		return nil, apperr.Validation("no checker is configured")
	}

	token, err := auth.SignCheckerToken([]byte(s.cfg.SharedSecret), record.ID, project.ID, project.Version, time.Now())
	if err != nil {
		return nil, err
	}

	result, err := s.client.Check(ctx, &checker.Request{
		Query:          record.Text,
		Document:       project.Document,
		ProjectVersion: project.Version,
		CallbackURL:    s.baseURL + "/internal/checker/results",
		CallbackToken:  token,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QueriesRun.Add(ctx, 1)
	}

	outcome := &RunOutcome{ProjectVersion: project.Version}
	if result == nil {
		return outcome, nil
	}

	if err := s.storeResult(ctx, record.ID, project.ID, project.Version, result); err != nil {
		if errors.Is(err, apperr.ErrResultStale) {
			// The document moved while the engine was thinking. The
			// caller sees an incomplete run and the query stays
			// outdated.
			return outcome, nil
		}
		return nil, err
	}

	outcome.Completed = true
	outcome.Result = result
	return outcome, nil
}

// ReportResult stores a result delivered through the checker callback.
// The claims were verified by middleware; staleness is still decided
// by the database, not the token.
func (s *Service) ReportResult(ctx context.Context, claims *auth.CheckerClaims, result json.RawMessage) error {
	if len(result) == 0 || !json.Valid(result) {
		return apperr.Validation("result must be valid JSON")
	}
	return s.storeResult(ctx, claims.QueryID, claims.ProjectID, claims.ProjectVersion, result)
}

func (s *Service) storeResult(ctx context.Context, queryID, projectID string, version int64, result json.RawMessage) error {
	err := s.queries.ReportResult(ctx, queryID, projectID, version, result, time.Now())
	if s.metrics != nil && (err == nil || errors.Is(err, apperr.ErrResultStale)) {
		s.metrics.RecordResult(ctx, err != nil)
	}
	return err
}

func (s *Service) authorizedProject(ctx context.Context, userID, projectID, action string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, userID, project, action); err != nil {
		return nil, err
	}
	return project, nil
}
