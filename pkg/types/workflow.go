package types

// WorkflowSpec definição de workflow como trafega na API e nos arquivos YAML.
// Durações são strings no formato time.ParseDuration ("30s", "2m").
type WorkflowSpec struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int        `json:"version,omitempty" yaml:"version,omitempty"`
	Timeout     string     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount  int        `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Steps       []StepSpec `json:"steps" yaml:"steps"`
}

type StepSpec struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type         string         `json:"type,omitempty" yaml:"type,omitempty"` // action (padrão), wait, condition
	AgentID      string         `json:"agent_id" yaml:"agent_id"`
	Action       string         `json:"action" yaml:"action"`
	Timeout      string         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount   *int           `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	RetryDelay   string         `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	Condition    string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Optional     bool           `json:"optional,omitempty" yaml:"optional,omitempty"`

	Expression    string `json:"expression,omitempty" yaml:"expression,omitempty"`
	WaitDuration  string `json:"wait_duration,omitempty" yaml:"wait_duration,omitempty"`
	WaitCondition string `json:"wait_condition,omitempty" yaml:"wait_condition,omitempty"`
}
