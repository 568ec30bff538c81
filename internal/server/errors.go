package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/modelhub-io/modelhub/internal/apperr"
)

// errorResponse is the uniform error body. Holder fields are filled
// only for lock conflicts where the current holder is known.
type errorResponse struct {
	Error         string     `json:"error"`
	Holder        string     `json:"holder,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
}

// statusFor maps domain errors to HTTP status codes. Unknown errors
// are treated as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials),
		errors.Is(err, apperr.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrLockHeldByOther):
		return http.StatusLocked
	case errors.Is(err, apperr.ErrNotLockHolder),
		errors.Is(err, apperr.ErrStaleLock),
		errors.Is(err, apperr.ErrResultStale),
		errors.Is(err, apperr.ErrDuplicate):
		return http.StatusConflict
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	body := errorResponse{Error: err.Error()}
	var held *apperr.LockHeldError
	if errors.As(err, &held) {
		body.Holder = held.HolderUsername
		expires := held.ExpiresAt
		body.LockExpiresAt = &expires
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// maxBodyBytes caps request bodies; model documents are the largest
// payloads and stay well under this.
const maxBodyBytes = 4 << 20

// decodeJSON parses the request body into dst and reports failure to
// the client. Returns false when the handler should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return false
	}
	return true
}
