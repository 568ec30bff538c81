// Package project implements project CRUD, the edit lock lease, and
// the versioned document write that drives query invalidation.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/services/access"
	"github.com/modelhub-io/modelhub/internal/services/validation"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

const docCacheSize = 128

// Summary captures project metadata for list and lock responses.
type Summary struct {
	ID         string
	Name       string
	OwnerID    string
	Version    int64
	InUse      bool
	HeldByMe   bool
	LockExpiry *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Detail is a summary plus the model document itself.
type Detail struct {
	Summary
	Document json.RawMessage
}

// Service orchestrates project persistence, authorization and the
// edit lock lease.
type Service struct {
	projects  repository.ProjectRepository
	access    *access.Service
	validator *validation.DocumentValidator
	lockCfg   config.LockConfig
	metrics   *telemetry.CoordinatorMetrics

	// docCache memoizes documents keyed by "<id>@<version>"; entries
	// are immutable because every write creates a new version.
	docCache *lru.Cache[string, []byte]
}

// NewService constructs the project service.
func NewService(projects repository.ProjectRepository, accessSvc *access.Service, validator *validation.DocumentValidator, lockCfg config.LockConfig) (*Service, error) {
	cache, err := lru.New[string, []byte](docCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}

	return &Service{
		projects:  projects,
		access:    accessSvc,
		validator: validator,
		lockCfg:   lockCfg,
		docCache:  cache,
	}, nil
}

// WithMetrics attaches coordinator metrics (optional dependency).
func (s *Service) WithMetrics(m *telemetry.CoordinatorMetrics) *Service {
	s.metrics = m
	return s
}

// Create validates the document and persists a new project owned by
// the caller.
func (s *Service) Create(ctx context.Context, ownerID, name string, document []byte) (*Summary, error) {
	if err := s.validator.Validate(document); err != nil {
		return nil, err
	}

	record := &models.Project{
		ID:       bunx.NewUUIDv7(),
		Name:     name,
		OwnerID:  ownerID,
		Document: document,
	}
	if err := s.projects.Create(ctx, record); err != nil {
		return nil, err
	}

	summary := s.toSummary(record, "", time.Now())
	return &summary, nil
}

// Get returns the project with its document. Requires read rights.
func (s *Service) Get(ctx context.Context, userID, sessionID, projectID string) (*Detail, error) {
	record, err := s.authorized(ctx, userID, projectID, auth.ActionProjectRead)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s@%d", record.ID, record.Version)
	document, ok := s.docCache.Get(cacheKey)
	if !ok {
		document = record.Document
		s.docCache.Add(cacheKey, document)
	}

	return &Detail{
		Summary:  s.toSummary(record, sessionID, time.Now()),
		Document: document,
	}, nil
}

// List returns summaries of every project the user owns or holds a
// grant on.
func (s *Service) List(ctx context.Context, userID, sessionID string) ([]Summary, error) {
	records, err := s.projects.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summaries := make([]Summary, 0, len(records))
	for i := range records {
		summaries = append(summaries, s.toSummary(&records[i], sessionID, now))
	}
	return summaries, nil
}

// Rename changes the project name. Requires the rename action, which
// only the owner level holds.
func (s *Service) Rename(ctx context.Context, userID, projectID, name string) error {
	if _, err := s.authorized(ctx, userID, projectID, auth.ActionProjectRename); err != nil {
		return err
	}
	return s.projects.Rename(ctx, projectID, name)
}

// Delete removes the project with its grants and queries. Owner only.
func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := s.authorized(ctx, userID, projectID, auth.ActionProjectDelete); err != nil {
		return err
	}
	return s.projects.Delete(ctx, projectID)
}

// AcquireLock takes the edit lock for the caller's session. A lapsed
// lease held by someone else is taken over.
func (s *Service) AcquireLock(ctx context.Context, userID, sessionID, projectID string, lease time.Duration) (*Summary, error) {
	before, err := s.authorized(ctx, userID, projectID, auth.ActionLockAcquire)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	takeover := before.LockSessionID != nil && *before.LockSessionID != sessionID && !before.LockedAt(now)

	record, err := s.projects.AcquireLock(ctx, projectID, sessionID, now, s.clampLease(lease), s.lockCfg.MaxLeaseDuration)
	if err != nil {
		return nil, s.describeLockConflict(ctx, projectID, now, err)
	}

	if s.metrics != nil {
		s.metrics.RecordLockAcquired(ctx, takeover)
	}

	summary := s.toSummary(record, sessionID, now)
	return &summary, nil
}

// clampLease bounds a caller-requested lease to [1s, max lease],
// falling back to the configured default when none was requested.
func (s *Service) clampLease(requested time.Duration) time.Duration {
	lease := s.lockCfg.LeaseDuration
	if requested > 0 {
		lease = requested
	}
	if lease < time.Second {
		lease = time.Second
	}
	if max := s.lockCfg.MaxLeaseDuration; max > 0 && lease > max {
		lease = max
	}
	return lease
}

// describeLockConflict attaches the current holder's identity to a
// lost acquire so the caller knows who to wait for.
func (s *Service) describeLockConflict(ctx context.Context, projectID string, now time.Time, err error) error {
	if !errors.Is(err, apperr.ErrLockHeldByOther) {
		return err
	}
	username, expiresAt, holderErr := s.projects.LockHolder(ctx, projectID, now)
	if holderErr != nil {
		// The lease may have lapsed since the acquire lost; report the
		// plain conflict and let the caller retry.
		return err
	}
	return &apperr.LockHeldError{HolderUsername: username, ExpiresAt: expiresAt}
}

// RenewLock extends the caller's live lease.
func (s *Service) RenewLock(ctx context.Context, userID, sessionID, projectID string) (*Summary, error) {
	if _, err := s.authorized(ctx, userID, projectID, auth.ActionLockRenew); err != nil {
		return nil, err
	}

	now := time.Now()
	record, err := s.projects.RenewLock(ctx, projectID, sessionID, now, s.lockCfg.LeaseDuration, s.lockCfg.MaxLeaseDuration)
	if err != nil {
		return nil, err
	}

	summary := s.toSummary(record, sessionID, now)
	return &summary, nil
}

// ReleaseLock frees the caller's lease. Idempotent: releasing a lock
// the session does not hold succeeds without touching the holder.
func (s *Service) ReleaseLock(ctx context.Context, userID, sessionID, projectID string) error {
	if _, err := s.authorized(ctx, userID, projectID, auth.ActionLockRelease); err != nil {
		return err
	}

	if err := s.projects.ReleaseLock(ctx, projectID, sessionID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.LockReleases.Add(ctx, 1)
	}
	return nil
}

// UpdateDocument validates and writes a new document revision while
// the caller's session holds the lock. Every query of the project
// flips to outdated in the same transaction. Returns the new version.
func (s *Service) UpdateDocument(ctx context.Context, userID, sessionID, projectID string, document []byte) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "hubapi/services/project", "project.UpdateDocument",
		attribute.String(telemetry.AttrProjectID, projectID),
		attribute.String(telemetry.AttrSessionID, sessionID),
	)
	defer span.End()

	if _, err := s.authorized(ctx, userID, projectID, auth.ActionProjectWrite); err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	if err := s.validator.Validate(document); err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	version, invalidated, err := s.projects.UpdateDocument(ctx, projectID, sessionID, document, time.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64(telemetry.AttrProjectVersion, version))

	if s.metrics != nil {
		s.metrics.DocumentWrites.Add(ctx, 1)
		s.metrics.QueryInvalidation.Add(ctx, invalidated)
	}
	return version, nil
}

// Grants lists who holds access on the project. The access service
// authorizes the caller.
func (s *Service) Grants(ctx context.Context, userID, projectID string) ([]access.Grant, error) {
	record, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.access.List(ctx, userID, record)
}

// GrantAccess gives the user named by targetIdentifier (email,
// username, or id) a role on the project. The caller's rights are
// checked before the target is resolved, so posting grants to a
// project cannot be used to probe which accounts exist.
func (s *Service) GrantAccess(ctx context.Context, userID, projectID, targetIdentifier string, role models.Role) error {
	record, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, userID, record, auth.ActionAccessGrant); err != nil {
		return err
	}

	target, err := s.access.ResolveUser(ctx, targetIdentifier)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("no such user %q: %w", targetIdentifier, apperr.ErrNotFound)
		}
		return err
	}
	return s.access.Grant(ctx, userID, record, target.ID, role)
}

// RevokeAccess removes targetUserID's grant on the project.
func (s *Service) RevokeAccess(ctx context.Context, userID, projectID, targetUserID string) error {
	record, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	return s.access.Revoke(ctx, userID, record, targetUserID)
}

// authorized loads the project and checks the action in one step.
func (s *Service) authorized(ctx context.Context, userID, projectID, action string) (*models.Project, error) {
	record, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, userID, record, action); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) toSummary(record *models.Project, sessionID string, now time.Time) Summary {
	summary := Summary{
		ID:        record.ID,
		Name:      record.Name,
		OwnerID:   record.OwnerID,
		Version:   record.Version,
		InUse:     record.LockedAt(now),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if summary.InUse {
		summary.LockExpiry = record.LockExpiresAt
		summary.HeldByMe = sessionID != "" && record.HeldBy(sessionID, now)
	}
	return summary
}
