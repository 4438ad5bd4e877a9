package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diogoX451/agentnet/internal/api/dto"
)

// Handler: GET /api/v1/executions?user_id=
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	execs, err := s.workflows.ListExecutions(ctx, r.URL.Query().Get("user_id"))
	if err != nil {
		respondDomainError(w, err, "EXECUTION_QUERY_FAILED")
		return
	}
	respondJSON(w, http.StatusOK, execs)
}

// Handler: GET /api/v1/executions/{id}
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	exec, err := s.workflows.GetExecution(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "EXECUTION_QUERY_FAILED")
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

// Handler: GET /api/v1/executions/{id}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	progress, err := s.workflows.GetProgress(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "EXECUTION_QUERY_FAILED")
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// Handler: POST /api/v1/executions/{id}/cancel
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := s.workflows.CancelExecution(ctx, id); err != nil {
		respondDomainError(w, err, "CANCEL_FAILED")
		return
	}
	respondJSON(w, http.StatusAccepted, dto.CancelResponse{
		ExecutionID: id,
		Status:      "cancel_requested",
	})
}
