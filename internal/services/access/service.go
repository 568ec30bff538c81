// Package access resolves effective rights levels on projects and
// answers authorization questions through the Casbin policy set.
//
// Grants live in the accesses table; Casbin holds only the static
// mapping from rights levels to permitted actions. Ownership is
// implicit: the owner always resolves to the owner level and never
// has a grant row.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

// Grant is the wire-facing view of an access row.
type Grant struct {
	UserID    string
	Username  string
	Email     string
	Role      models.Role
}

// Service resolves rights and manages grants.
type Service struct {
	accesses repository.AccessRepository
	users    repository.UserRepository
	enforcer casbin.IEnforcer
}

// NewService constructs the access service.
func NewService(accesses repository.AccessRepository, users repository.UserRepository, enforcer casbin.IEnforcer) *Service {
	return &Service{
		accesses: accesses,
		users:    users,
		enforcer: enforcer,
	}
}

// EffectiveLevel resolves the rights level a user holds on a project:
// the owner level for the owner, the granted level otherwise, or ""
// when no relationship exists.
func (s *Service) EffectiveLevel(ctx context.Context, userID string, project *models.Project) (string, error) {
	if project.OwnerID == userID {
		return auth.SubjectOwner, nil
	}

	grant, err := s.accesses.Get(ctx, userID, project.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	switch grant.Role {
	case models.RoleEditor:
		return auth.SubjectWrite, nil
	default:
		return auth.SubjectRead, nil
	}
}

// Authorize checks that userID may perform action on the project.
// Users with no relationship to the project get not-found rather than
// forbidden, so project existence does not leak through status codes.
func (s *Service) Authorize(ctx context.Context, userID string, project *models.Project, action string) error {
	ctx, span := telemetry.StartSpan(ctx, "hubapi/services/access", "access.Authorize",
		attribute.String(telemetry.AttrUserID, userID),
		attribute.String(telemetry.AttrProjectID, project.ID),
		attribute.String(telemetry.AttrAccessAction, action),
	)
	defer span.End()

	level, err := s.EffectiveLevel(ctx, userID, project)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if level == "" {
		return fmt.Errorf("project: %w", apperr.ErrNotFound)
	}
	span.SetAttributes(attribute.String(telemetry.AttrAccessLevel, level))

	allowed, err := s.enforcer.Enforce(level, action)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("enforce %s: %w", action, err)
	}
	if !allowed {
		return fmt.Errorf("%s requires more than %s: %w", action, level, apperr.ErrAccessDenied)
	}

	return nil
}

// Grant gives targetUserID a role on the project, replacing any
// existing grant. The caller must hold the grant action; the owner
// cannot be granted a role on their own project.
func (s *Service) Grant(ctx context.Context, callerID string, project *models.Project, targetUserID string, role models.Role) error {
	if err := s.Authorize(ctx, callerID, project, auth.ActionAccessGrant); err != nil {
		return err
	}
	if targetUserID == project.OwnerID {
		return apperr.Validation("the owner already holds full rights")
	}

	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		return err
	}
	if target.Disabled() {
		return apperr.Validation("cannot grant access to a disabled account")
	}

	return s.accesses.Upsert(ctx, &models.Access{
		ID:        bunx.NewUUIDv7(),
		UserID:    targetUserID,
		ProjectID: project.ID,
		Role:      role,
	})
}

// Revoke removes targetUserID's grant on the project.
func (s *Service) Revoke(ctx context.Context, callerID string, project *models.Project, targetUserID string) error {
	if err := s.Authorize(ctx, callerID, project, auth.ActionAccessRevoke); err != nil {
		return err
	}
	if targetUserID == project.OwnerID {
		return apperr.Validation("the owner's rights cannot be revoked")
	}

	return s.accesses.Delete(ctx, targetUserID, project.ID)
}

// ResolveUser finds a user by email, username, or id, in that order.
// API clients name grant targets by any of the three.
func (s *Service) ResolveUser(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	user, err = s.users.GetByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	return s.users.GetByID(ctx, identifier)
}

// List returns the grants on a project with user identities resolved.
func (s *Service) List(ctx context.Context, callerID string, project *models.Project) ([]Grant, error) {
	if err := s.Authorize(ctx, callerID, project, auth.ActionAccessList); err != nil {
		return nil, err
	}

	rows, err := s.accesses.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	grants := make([]Grant, 0, len(rows))
	for _, row := range rows {
		user, err := s.users.GetByID(ctx, row.UserID)
		if err != nil {
			return nil, err
		}
		grants = append(grants, Grant{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     row.Role,
		})
	}

	return grants, nil
}
