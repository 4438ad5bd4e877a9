package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/diogoX451/agentnet/internal/api/dto"
	"github.com/diogoX451/agentnet/internal/core/domain"
)

const Version = "0.1.0"

// AgentService o que a API usa do AgentManager
type AgentService interface {
	ListAgents() []domain.Agent
	GetAgent(agentID string) (domain.Agent, error)
	AgentMetrics(agentID string) (domain.AgentMetrics, error)
	NetworkStatus() domain.NetworkStatus
	PerformHealthCheck(ctx context.Context, agentID string) domain.HealthCheckResult
	ResolveAction(agentID, action string) error
	SendRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse
}

// WorkflowService o que a API usa do engine
type WorkflowService interface {
	RegisterWorkflow(def domain.WorkflowDefinition) error
	GetWorkflow(id string) (domain.WorkflowDefinition, error)
	GetWorkflowVersion(id string, version int) (domain.WorkflowDefinition, error)
	ListWorkflows() []domain.WorkflowDefinition
	ExecuteWorkflow(ctx context.Context, workflowID string, params map[string]any, userID string) (domain.WorkflowExecution, error)
	GetExecution(ctx context.Context, executionID string) (domain.WorkflowExecution, error)
	ListExecutions(ctx context.Context, userID string) ([]domain.WorkflowExecution, error)
	CancelExecution(ctx context.Context, executionID string) error
	GetProgress(ctx context.Context, executionID string) (domain.ExecutionProgress, error)
}

// Server encapsula todas dependências da API
type Server struct {
	router    *chi.Mux
	agents    AgentService
	workflows WorkflowService
	metrics   http.Handler
	logger    *zap.Logger
}

// NewServer metricsHandler pode ser nil (sem /metrics)
func NewServer(agents AgentService, workflows WorkflowService, metricsHandler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:    chi.NewRouter(),
		agents:    agents,
		workflows: workflows,
		metrics:   metricsHandler,
		logger:    logger.With(zap.String("component", "api")),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/health", s.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			// Agents
			r.Get("/agents", s.handleListAgents)
			r.Get("/agents/{id}", s.handleGetAgent)
			r.Get("/agents/{id}/metrics", s.handleAgentMetrics)
			r.Post("/agents/{id}/health", s.handleHealthCheck)
			r.Post("/agents/{id}/actions/{action}", s.handleAgentAction)
			r.Get("/network", s.handleNetworkStatus)

			// Workflows
			r.Post("/workflows", s.handleRegisterWorkflow)
			r.Get("/workflows", s.handleListWorkflows)
			r.Get("/workflows/{id}", s.handleGetWorkflow)
			r.Post("/workflows/{id}/executions", s.handleExecuteWorkflow)

			// Executions
			r.Get("/executions", s.handleListExecutions)
			r.Get("/executions/{id}", s.handleGetExecution)
			r.Get("/executions/{id}/progress", s.handleGetProgress)
			r.Post("/executions/{id}/cancel", s.handleCancelExecution)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler: Health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// requestLogger substitui o middleware.Logger do chi por zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(started)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// Helper: JSON content-type
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Helper: Responder JSON
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: Responder erro
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondDomainError mapeia erros do domínio para status HTTP
func respondDomainError(w http.ResponseWriter, err error, fallbackCode string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "VALIDATION_FAILED",
			Details: ve.Field,
		})
	case domain.IsNotFound(err):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrExecutionFinished):
		respondError(w, http.StatusConflict, "EXECUTION_FINISHED", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}
