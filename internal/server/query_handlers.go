package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/middleware"
)

type createQueryRequest struct {
	Text string `json:"text"`
}

func (h *handlers) handleQueryCreate(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	created, err := h.queries.Create(r.Context(), principal.UserID, chi.URLParam(r, "projectID"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueryResponse(created))
}

func (h *handlers) handleQueryList(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	list, err := h.queries.List(r.Context(), principal.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]queryResponse, 0, len(list))
	for i := range list {
		out = append(out, toQueryResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) handleQueryGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	record, err := h.queries.Get(r.Context(), principal.UserID, chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueryResponse(record))
}

type updateQueryRequest struct {
	Text string `json:"text"`
}

func (h *handlers) handleQueryUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.queries.UpdateText(r.Context(), principal.UserID, chi.URLParam(r, "queryID"), req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) handleQueryDelete(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	if err := h.queries.Delete(r.Context(), principal.UserID, chi.URLParam(r, "queryID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runQueryResponse struct {
	Completed      bool            `json:"completed"`
	Result         json.RawMessage `json:"result,omitempty"`
	ProjectVersion int64           `json:"project_version"`
}

func (h *handlers) handleQueryRun(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	outcome, err := h.queries.Run(r.Context(), principal.UserID, chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runQueryResponse{
		Completed:      outcome.Completed,
		Result:         outcome.Result,
		ProjectVersion: outcome.ProjectVersion,
	})
}

type checkerResultRequest struct {
	Result json.RawMessage `json:"result"`
}

// handleCheckerResult ingests an asynchronous result from the
// verification engine. The claims were verified by the callback
// middleware and pin the result to the version it was computed for.
func (h *handlers) handleCheckerResult(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.CheckerClaimsFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing callback claims"})
		return
	}

	var req checkerResultRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.queries.ReportResult(r.Context(), claims, req.Result); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
