package middleware

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/modelhub-io/modelhub/internal/apperr"
	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/services/session"
)

// SessionAuth validates the Authorization bearer token against the
// session store and places the resulting principal on the request
// context. Requests without a valid, unexpired session get a 401.
//
// Authenticating a session also slides its idle window, so any
// authenticated call keeps the session alive.
func SessionAuth(sessions *session.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			sess, user, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrSessionExpired) {
					log.Printf("session authentication failed: %v", err)
				}
				unauthorized(w, "invalid or expired session")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), auth.Principal{
				UserID:    user.ID,
				SessionID: sess.ID,
				Username:  user.Username,
				Email:     user.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer x"
// header, tolerating case variance in the scheme.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
