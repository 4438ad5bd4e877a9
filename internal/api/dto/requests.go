package dto

type ExecuteWorkflowRequest struct {
	UserID     string         `json:"user_id"`
	Parameters map[string]any `json:"parameters"`
}

// AgentActionRequest chamada direta a uma ação (fora de workflow)
type AgentActionRequest struct {
	UserID     string         `json:"user_id"`
	Parameters map[string]any `json:"parameters"`
	Timeout    string         `json:"timeout,omitempty"`
}
