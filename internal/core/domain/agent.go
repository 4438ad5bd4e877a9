package domain

import (
	"encoding/json"
	"time"
)

// AgentStatus é o estado de saúde observado de um agente remoto
type AgentStatus string

const (
	AgentUnknown  AgentStatus = "unknown"
	AgentOnline   AgentStatus = "online"
	AgentDegraded AgentStatus = "degraded"
	AgentOffline  AgentStatus = "offline"
)

// Capability é uma ação exposta pelo agente.
// Schema (JSON Schema) é opcional e valida os parâmetros da ação.
type Capability struct {
	Action      string          `json:"action"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Agent descreve um serviço de agente registrado e sua saúde atual
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	BaseURL      string       `json:"base_url"`
	Capabilities []Capability `json:"capabilities"`

	Status              AgentStatus   `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastProbeTime       time.Time     `json:"last_probe_time"`
	LastLatency         time.Duration `json:"last_latency"`
	LastError           string        `json:"last_error,omitempty"`
}

// HasAction indica se o agente anuncia a ação
func (a Agent) HasAction(action string) bool {
	for _, c := range a.Capabilities {
		if c.Action == action {
			return true
		}
	}
	return false
}

// Clone copia o agente sem compartilhar slices
func (a Agent) Clone() Agent {
	out := a
	if a.Capabilities != nil {
		out.Capabilities = make([]Capability, len(a.Capabilities))
		for i, c := range a.Capabilities {
			out.Capabilities[i] = c
			if c.Schema != nil {
				out.Capabilities[i].Schema = append(json.RawMessage(nil), c.Schema...)
			}
		}
	}
	return out
}

// HealthCheckResult resultado de uma sonda de saúde
type HealthCheckResult struct {
	AgentID   string        `json:"agent_id"`
	Status    AgentStatus   `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// AgentRequest é uma chamada de ação para um agente
type AgentRequest struct {
	AgentID    string         `json:"agent_id"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	UserID     string         `json:"user_id"`
	RequestID  string         `json:"request_id"`
	Timeout    time.Duration  `json:"timeout"`
}

// AgentResponse resultado de uma chamada. Falhas esperadas viram dados, nunca erro.
type AgentResponse struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	AgentID       string         `json:"agent_id"`
	RequestID     string         `json:"request_id"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Timestamp     time.Time      `json:"timestamp"`
}

func NewSuccessResponse(req AgentRequest, data map[string]any) AgentResponse {
	return AgentResponse{
		Success:   true,
		Data:      data,
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Timestamp: time.Now(),
	}
}

func NewFailureResponse(req AgentRequest, reason string) AgentResponse {
	return AgentResponse{
		Success:   false,
		Error:     reason,
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Timestamp: time.Now(),
	}
}

// AgentMetrics contadores de requisições por agente
type AgentMetrics struct {
	AgentID             string        `json:"agent_id"`
	RequestCount        int64         `json:"request_count"`
	SuccessCount        int64         `json:"success_count"`
	ErrorCount          int64         `json:"error_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	LastRequestTime     time.Time     `json:"last_request_time,omitempty"`
}

// Record soma uma resposta às métricas (média incremental)
func (m *AgentMetrics) Record(resp AgentResponse) {
	m.RequestCount++
	if resp.Success {
		m.SuccessCount++
	} else {
		m.ErrorCount++
	}
	m.AverageResponseTime += (resp.ExecutionTime - m.AverageResponseTime) / time.Duration(m.RequestCount)
	m.LastRequestTime = resp.Timestamp
}

// NetworkStatus visão agregada da rede de agentes
type NetworkStatus struct {
	TotalAgents    int                    `json:"total_agents"`
	OnlineAgents   int                    `json:"online_agents"`
	DegradedAgents int                    `json:"degraded_agents"`
	OfflineAgents  int                    `json:"offline_agents"`
	UnknownAgents  int                    `json:"unknown_agents"`
	NetworkHealth  float64                `json:"network_health"`
	Agents         map[string]AgentStatus `json:"agents"`
	Timestamp      time.Time              `json:"timestamp"`
}

// SummarizeNetwork agrega status de uma lista de agentes
func SummarizeNetwork(agents []Agent) NetworkStatus {
	ns := NetworkStatus{
		TotalAgents: len(agents),
		Agents:      make(map[string]AgentStatus, len(agents)),
		Timestamp:   time.Now(),
	}
	for _, a := range agents {
		ns.Agents[a.ID] = a.Status
		switch a.Status {
		case AgentOnline:
			ns.OnlineAgents++
		case AgentDegraded:
			ns.DegradedAgents++
		case AgentOffline:
			ns.OfflineAgents++
		default:
			ns.UnknownAgents++
		}
	}
	if ns.TotalAgents > 0 {
		ns.NetworkHealth = float64(ns.OnlineAgents) / float64(ns.TotalAgents)
	}
	return ns
}
