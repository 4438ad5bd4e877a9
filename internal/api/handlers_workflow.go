package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diogoX451/agentnet/internal/api/dto"
	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/definitions"
	"github.com/diogoX451/agentnet/pkg/types"
)

// Handler: POST /api/v1/workflows
func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	var spec types.WorkflowSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	def, err := definitions.FromSpec(spec)
	if err != nil {
		respondDomainError(w, err, "INVALID_WORKFLOW")
		return
	}
	if def.Version == 0 {
		def.Version = 1
	}
	if err := s.workflows.RegisterWorkflow(def); err != nil {
		respondDomainError(w, err, "REGISTER_FAILED")
		return
	}

	respondJSON(w, http.StatusCreated, definitions.ToSpec(def))
}

// Handler: GET /api/v1/workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := s.workflows.ListWorkflows()
	out := dto.WorkflowListResponse{
		Workflows: make([]types.WorkflowSpec, 0, len(defs)),
		Count:     len(defs),
	}
	for _, d := range defs {
		out.Workflows = append(out.Workflows, definitions.ToSpec(d))
	}
	respondJSON(w, http.StatusOK, out)
}

// Handler: GET /api/v1/workflows/{id}?version=N
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		def domain.WorkflowDefinition
		err error
	)
	if v := r.URL.Query().Get("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil || version <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer")
			return
		}
		def, err = s.workflows.GetWorkflowVersion(id, version)
	} else {
		def, err = s.workflows.GetWorkflow(id)
	}
	if err != nil {
		respondDomainError(w, err, "WORKFLOW_QUERY_FAILED")
		return
	}

	respondJSON(w, http.StatusOK, definitions.ToSpec(def))
}

// Handler: POST /api/v1/workflows/{id}/executions
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req dto.ExecuteWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	exec, err := s.workflows.ExecuteWorkflow(ctx, chi.URLParam(r, "id"), req.Parameters, req.UserID)
	if err != nil {
		respondDomainError(w, err, "EXECUTION_FAILED")
		return
	}

	// Responde 202 Accepted (processamento assíncrono)
	respondJSON(w, http.StatusAccepted, dto.ExecutionAcceptedResponse{
		ExecutionID: exec.ExecutionID,
		WorkflowID:  exec.WorkflowID,
		Version:     exec.WorkflowVersion,
		Status:      string(exec.Status),
		StartedAt:   exec.StartTime,
	})
}
