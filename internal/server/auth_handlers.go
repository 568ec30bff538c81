package server

import (
	"net/http"

	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/services/project"
	"github.com/modelhub-io/modelhub/internal/services/query"
	"github.com/modelhub-io/modelhub/internal/services/session"
)

// handlers carries the service dependencies for every route.
type handlers struct {
	sessions *session.Service
	projects *project.Service
	queries  *query.Service
}

type loginRequest struct {
	// Identifier is an email address or a username.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, _, user, err := h.sessions.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.sessions.Logout(r.Context(), principal.SessionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	ended, err := h.sessions.LogoutAll(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sessions_ended": ended})
}

func (h *handlers) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":  principal.UserID,
		"username": principal.Username,
		"email":    principal.Email,
	})
}
