// Package session implements login, bearer-token authentication with a
// sliding activity window, and the background sweep that reaps expired
// sessions and frees the edit locks they held.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

// Service manages the session lifecycle.
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	projects repository.ProjectRepository
	cfg      config.SessionConfig
	metrics  *telemetry.CoordinatorMetrics
}

// NewService constructs the session service.
func NewService(users repository.UserRepository, sessions repository.SessionRepository, projects repository.ProjectRepository, cfg config.SessionConfig) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		projects: projects,
		cfg:      cfg,
	}
}

// WithMetrics attaches coordinator metrics (optional dependency).
func (s *Service) WithMetrics(m *telemetry.CoordinatorMetrics) *Service {
	s.metrics = m
	return s
}

// Login verifies credentials and opens a session. The login argument
// may be an email address or a username. The returned token is shown
// to the client exactly once; only its hash is stored.
func (s *Service) Login(ctx context.Context, login, password string) (string, *models.Session, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, login)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return "", nil, nil, err
		}
		user, err = s.users.GetByUsername(ctx, login)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return "", nil, nil, apperr.ErrInvalidCredentials
			}
			return "", nil, nil, err
		}
	}

	if user.Disabled() {
		return "", nil, nil, apperr.ErrInvalidCredentials
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return "", nil, nil, apperr.ErrInvalidCredentials
	}

	token, hash, err := auth.GenerateBearerToken()
	if err != nil {
		return "", nil, nil, fmt.Errorf("generate token: %w", err)
	}

	session := &models.Session{
		ID:        bunx.NewUUIDv7(),
		UserID:    user.ID,
		TokenHash: hash,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
		s.metrics.ActiveSessions.Add(ctx, 1)
	}

	return token, session, user, nil
}

// Authenticate resolves a bearer token to a live session and its user,
// sliding the activity window as a side effect. Expired, revoked and
// unknown tokens are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Session, *models.User, error) {
	found, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Touch(ctx, found.ID, time.Now(), s.cfg.IdleTimeout, s.cfg.MaxLifetime)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user.Disabled() {
		return nil, nil, fmt.Errorf("account disabled: %w", apperr.ErrSessionExpired)
	}

	return session, user, nil
}

// Logout ends a session and frees any edit locks it held.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	freed, err := s.projects.ReleaseLocksBySessions(ctx, []string{sessionID})
	if err != nil {
		return fmt.Errorf("release locks on logout: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, -1)
		s.metrics.LockReleases.Add(ctx, freed)
	}

	return nil
}

// LogoutAll ends every session of a user, freeing their locks. Used
// when an account is disabled.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	ids, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	freed, err := s.projects.ReleaseLocksBySessions(ctx, ids)
	if err != nil {
		return len(ids), fmt.Errorf("release locks for user sessions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, int64(-len(ids)))
		s.metrics.LockReleases.Add(ctx, freed)
	}

	return len(ids), nil
}

// Sweep removes every expired session and frees the locks they held.
// Returns how many sessions were reaped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.sessions.DeleteExpired(ctx, time.Now(), s.cfg.IdleTimeout, s.cfg.MaxLifetime)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	freed, err := s.projects.ReleaseLocksBySessions(ctx, ids)
	if err != nil {
		return len(ids), fmt.Errorf("release locks for expired sessions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsExpired.Add(ctx, int64(len(ids)))
		s.metrics.ActiveSessions.Add(ctx, int64(-len(ids)))
		s.metrics.LockReleases.Add(ctx, freed)
	}

	return len(ids), nil
}

// RunSweeper runs Sweep on the configured interval until ctx ends.
// Intended to run in its own goroutine for the server's lifetime.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("session sweep failed: %v", err)
				continue
			}
			if reaped > 0 {
				log.Printf("session sweep reaped %d expired session(s)", reaped)
			}
		}
	}
}
