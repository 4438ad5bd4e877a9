package domain

import (
	"time"
)

// StepType tipo do step; vazio equivale a action
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeWait      StepType = "wait"
	StepTypeCondition StepType = "condition"
)

// WorkflowStep é um nó do DAG: uma ação em um agente, uma espera ou uma avaliação
type WorkflowStep struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         StepType       `json:"type,omitempty"`
	AgentID      string         `json:"agent_id"`
	Action       string         `json:"action"`
	Timeout      time.Duration  `json:"timeout"`
	RetryCount   *int           `json:"retry_count,omitempty"` // nil herda o default da definição
	RetryDelay   time.Duration  `json:"retry_delay"`
	Condition    string         `json:"condition,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Optional     bool           `json:"optional"`

	// condition: expressão cujo resultado vira output {condition_result}
	Expression string `json:"expression,omitempty"`
	// wait: duração fixa ou condição consultada até o timeout do step
	WaitDuration  time.Duration `json:"wait_duration,omitempty"`
	WaitCondition string        `json:"wait_condition,omitempty"`
}

// Kind tipo efetivo do step
func (s WorkflowStep) Kind() StepType {
	if s.Type == "" {
		return StepTypeAction
	}
	return s.Type
}

// Retries número de retentativas efetivo (tentativas = Retries+1)
func (s WorkflowStep) Retries(def WorkflowDefinition) int {
	if s.RetryCount != nil {
		return *s.RetryCount
	}
	return def.RetryCount
}

// WorkflowDefinition template versionado de workflow
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version"`
	Timeout     time.Duration  `json:"timeout"`
	RetryCount  int            `json:"retry_count"`
	Tags        []string       `json:"tags,omitempty"`
	Steps       []WorkflowStep `json:"steps"`
}

// Step busca um step pelo id
func (d WorkflowDefinition) Step(id string) (WorkflowStep, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

// Clone cópia profunda (definições são imutáveis depois de registradas)
func (d WorkflowDefinition) Clone() WorkflowDefinition {
	out := d
	out.Tags = append([]string(nil), d.Tags...)
	out.Steps = make([]WorkflowStep, len(d.Steps))
	for i, s := range d.Steps {
		cp := s
		if s.RetryCount != nil {
			r := *s.RetryCount
			cp.RetryCount = &r
		}
		cp.Dependencies = append([]string(nil), s.Dependencies...)
		cp.Parameters = CloneMap(s.Parameters)
		out.Steps[i] = cp
	}
	return out
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// Terminal completed, skipped ou failed
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepSkipped || s == StepFailed
}

// StepResult estado de um step dentro de uma execução
type StepResult struct {
	StepID     string         `json:"step_id"`
	Status     StepStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// WorkflowExecution instância em andamento (ou finalizada) de um workflow
type WorkflowExecution struct {
	ExecutionID     string                 `json:"execution_id"`
	WorkflowID      string                 `json:"workflow_id"`
	WorkflowVersion int                    `json:"workflow_version"`
	UserID          string                 `json:"user_id"`
	Parameters      map[string]any         `json:"parameters,omitempty"`
	Status          ExecutionStatus        `json:"status"`
	StepResults     map[string]*StepResult `json:"step_results"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	Error           string                 `json:"error,omitempty"`
	CancelRequested bool                   `json:"cancel_requested"`
}

// NewExecution cria a execução PENDING com todos os steps PENDING
func NewExecution(id string, def WorkflowDefinition, params map[string]any, userID string) *WorkflowExecution {
	results := make(map[string]*StepResult, len(def.Steps))
	for _, s := range def.Steps {
		results[s.ID] = &StepResult{StepID: s.ID, Status: StepPending}
	}
	return &WorkflowExecution{
		ExecutionID:     id,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		UserID:          userID,
		Parameters:      CloneMap(params),
		Status:          ExecutionPending,
		StepResults:     results,
		StartTime:       time.Now(),
	}
}

// Clone snapshot independente: quem lê nunca compartilha memória com o driver
func (e *WorkflowExecution) Clone() WorkflowExecution {
	out := *e
	out.Parameters = CloneMap(e.Parameters)
	out.StepResults = make(map[string]*StepResult, len(e.StepResults))
	for id, r := range e.StepResults {
		cp := *r
		cp.Output = CloneMap(r.Output)
		out.StepResults[id] = &cp
	}
	return out
}

// StepSummary linha de progresso por step
type StepSummary struct {
	StepID   string     `json:"step_id"`
	Name     string     `json:"name"`
	AgentID  string     `json:"agent_id"`
	Status   StepStatus `json:"status"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error,omitempty"`
}

// ExecutionProgress visão resumida de uma execução
type ExecutionProgress struct {
	ExecutionID  string          `json:"execution_id"`
	Status       ExecutionStatus `json:"status"`
	TotalSteps   int             `json:"total_steps"`
	Completed    int             `json:"completed_steps"`
	Skipped      int             `json:"skipped_steps"`
	Failed       int             `json:"failed_steps"`
	Running      int             `json:"running_steps"`
	Pending      int             `json:"pending_steps"`
	Percentage   float64         `json:"progress_percentage"`
	CurrentSteps []string        `json:"current_steps"`
	Steps        []StepSummary   `json:"steps"`
}

// Progress calcula o progresso seguindo a ordem dos steps da definição
func (e *WorkflowExecution) Progress(def WorkflowDefinition) ExecutionProgress {
	p := ExecutionProgress{
		ExecutionID:  e.ExecutionID,
		Status:       e.Status,
		TotalSteps:   len(e.StepResults),
		CurrentSteps: []string{},
	}
	for _, s := range def.Steps {
		r, ok := e.StepResults[s.ID]
		if !ok {
			continue
		}
		switch r.Status {
		case StepCompleted:
			p.Completed++
		case StepSkipped:
			p.Skipped++
		case StepFailed:
			p.Failed++
		case StepRunning:
			p.Running++
			p.CurrentSteps = append(p.CurrentSteps, s.ID)
		default:
			p.Pending++
		}
		p.Steps = append(p.Steps, StepSummary{
			StepID:   s.ID,
			Name:     s.Name,
			AgentID:  s.AgentID,
			Status:   r.Status,
			Attempts: r.Attempts,
			Error:    r.LastError,
		})
	}
	if p.TotalSteps > 0 {
		p.Percentage = float64(p.Completed+p.Skipped) / float64(p.TotalSteps) * 100
	}
	return p
}

// CloneMap cópia profunda de mapas/slices JSON-like
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
