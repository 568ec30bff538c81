package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/db/models"
)

type grantResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (h *handlers) handleAccessList(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	grants, err := h.projects.Grants(r.Context(), principal.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse{
			UserID:   g.UserID,
			Username: g.Username,
			Email:    g.Email,
			Role:     string(g.Role),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type grantRequest struct {
	// User is an email address, username, or user id.
	User string `json:"user"`
	Role string `json:"role"`
}

func (h *handlers) handleAccessGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, apperr.Validation(err.Error()))
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.projects.GrantAccess(r.Context(), principal.UserID, chi.URLParam(r, "projectID"), req.User, role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleAccessRevoke(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	err := h.projects.RevokeAccess(r.Context(), principal.UserID, chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
