package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diogoX451/agentnet/internal/api/dto"
	"github.com/diogoX451/agentnet/internal/core/domain"
)

// Handler: GET /api/v1/agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.agents.ListAgents())
}

// Handler: GET /api/v1/agents/{id}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetAgent(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "AGENT_QUERY_FAILED")
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// Handler: GET /api/v1/agents/{id}/metrics
func (s *Server) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.agents.AgentMetrics(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err, "AGENT_QUERY_FAILED")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Handler: POST /api/v1/agents/{id}/health
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if _, err := s.agents.GetAgent(agentID); err != nil {
		respondDomainError(w, err, "AGENT_QUERY_FAILED")
		return
	}

	res := s.agents.PerformHealthCheck(r.Context(), agentID)
	// status depois da transição (uma falha isolada é DEGRADED, não OFFLINE)
	status := res.Status
	if agent, err := s.agents.GetAgent(agentID); err == nil {
		status = agent.Status
	}
	respondJSON(w, http.StatusOK, dto.HealthCheckResponse{
		AgentID:   res.AgentID,
		Healthy:   res.Error == "",
		Status:    string(status),
		LatencyMS: res.Latency.Milliseconds(),
		Error:     res.Error,
		Timestamp: res.Timestamp,
	})
}

// Handler: POST /api/v1/agents/{id}/actions/{action}
// Falha do agente ainda é 200: o corpo traz success=false.
func (s *Server) handleAgentAction(w http.ResponseWriter, r *http.Request) {
	var req dto.AgentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	agentID := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")
	if _, err := s.agents.GetAgent(agentID); err != nil {
		respondDomainError(w, err, "AGENT_QUERY_FAILED")
		return
	}
	// ação fora das capacidades anunciadas é erro do cliente, não resposta do agente
	if err := s.agents.ResolveAction(agentID, action); err != nil {
		respondDomainError(w, err, "AGENT_QUERY_FAILED")
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_TIMEOUT", "timeout must be a positive duration")
			return
		}
		timeout = d
	}

	resp := s.agents.SendRequest(r.Context(), domain.AgentRequest{
		AgentID:    agentID,
		Action:     action,
		Parameters: req.Parameters,
		UserID:     req.UserID,
		Timeout:    timeout,
	})
	respondJSON(w, http.StatusOK, resp)
}

// Handler: GET /api/v1/network
func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.agents.NetworkStatus())
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}
