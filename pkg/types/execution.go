package types

import "time"

// ExecutionRecord forma persistida de uma execução
type ExecutionRecord struct {
	ID              ExecutionID            `json:"id"`
	WorkflowID      string                 `json:"workflow_id"`
	WorkflowVersion int                    `json:"workflow_version"`
	UserID          string                 `json:"user_id"`
	Status          ExecutionStatus        `json:"status"`
	Parameters      Data                   `json:"parameters,omitempty"`
	Steps           map[string]*StepRecord `json:"steps"`
	Error           string                 `json:"error,omitempty"`
	CancelRequested bool                   `json:"cancel_requested,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at,omitzero"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type StepRecord struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	Output     Data      `json:"output,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
