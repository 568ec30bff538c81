package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/services/project"
)

type projectSummaryResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	OwnerID    string     `json:"owner_id"`
	Version    int64      `json:"version"`
	InUse      bool       `json:"in_use"`
	HeldByMe   bool       `json:"held_by_me"`
	LockExpiry *time.Time `json:"lock_expiry,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toProjectSummaryResponse(s project.Summary) projectSummaryResponse {
	return projectSummaryResponse{
		ID:         s.ID,
		Name:       s.Name,
		OwnerID:    s.OwnerID,
		Version:    s.Version,
		InUse:      s.InUse,
		HeldByMe:   s.HeldByMe,
		LockExpiry: s.LockExpiry,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

type queryResponse struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Text      string          `json:"text"`
	Result    json.RawMessage `json:"result,omitempty"`
	Outdated  bool            `json:"outdated"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toQueryResponse(q *models.Query) queryResponse {
	return queryResponse{
		ID:        q.ID,
		ProjectID: q.ProjectID,
		Text:      q.Text,
		Result:    q.Result,
		Outdated:  q.Outdated,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

type createProjectRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document"`
}

func (h *handlers) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	summary, err := h.projects.Create(r.Context(), principal.UserID, req.Name, req.Document)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectSummaryResponse(*summary))
}

func (h *handlers) handleProjectList(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	summaries, err := h.projects.List(r.Context(), principal.UserID, principal.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]projectSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toProjectSummaryResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

type projectDetailResponse struct {
	projectSummaryResponse
	Document json.RawMessage `json:"document"`
	Queries  []queryResponse `json:"queries"`
}

func (h *handlers) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	principal, _ := auth.PrincipalFrom(r.Context())

	detail, err := h.projects.Get(r.Context(), principal.UserID, principal.SessionID, projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.queries.List(r.Context(), principal.UserID, projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	queries := make([]queryResponse, 0, len(list))
	for i := range list {
		queries = append(queries, toQueryResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, projectDetailResponse{
		projectSummaryResponse: toProjectSummaryResponse(detail.Summary),
		Document:               detail.Document,
		Queries:                queries,
	})
}

type renameProjectRequest struct {
	Name string `json:"name"`
}

func (h *handlers) handleProjectRename(w http.ResponseWriter, r *http.Request) {
	var req renameProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.projects.Rename(r.Context(), principal.UserID, chi.URLParam(r, "projectID"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.projects.Delete(r.Context(), principal.UserID, chi.URLParam(r, "projectID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acquireLockRequest struct {
	LeaseSeconds int `json:"lease_seconds"`
}

func (h *handlers) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	var lease time.Duration
	if r.ContentLength > 0 {
		var req acquireLockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.LeaseSeconds < 0 {
			writeError(w, r, apperr.Validation("lease_seconds must not be negative"))
			return
		}
		lease = time.Duration(req.LeaseSeconds) * time.Second
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	summary, err := h.projects.AcquireLock(r.Context(), principal.UserID, principal.SessionID, chi.URLParam(r, "projectID"), lease)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectSummaryResponse(*summary))
}

func (h *handlers) handleLockRenew(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	summary, err := h.projects.RenewLock(r.Context(), principal.UserID, principal.SessionID, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectSummaryResponse(*summary))
}

func (h *handlers) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.projects.ReleaseLock(r.Context(), principal.UserID, principal.SessionID, chi.URLParam(r, "projectID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateDocumentRequest struct {
	Document json.RawMessage `json:"document"`
}

func (h *handlers) handleDocumentUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	version, err := h.projects.UpdateDocument(r.Context(), principal.UserID, principal.SessionID, chi.URLParam(r, "projectID"), req.Document)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}
