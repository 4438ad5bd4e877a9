package dto

import (
	"time"

	"github.com/diogoX451/agentnet/pkg/types"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type WorkflowListResponse struct {
	Workflows []types.WorkflowSpec `json:"workflows"`
	Count     int                  `json:"count"`
}

type ExecutionAcceptedResponse struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	Version     int       `json:"workflow_version"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
}

type CancelResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"` // cancel_requested
}

type HealthCheckResponse struct {
	AgentID   string    `json:"agent_id"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
