package definitions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/pkg/types"
)

// FromSpec converte a forma de API/arquivo para o domínio (durações em texto)
func FromSpec(spec types.WorkflowSpec) (domain.WorkflowDefinition, error) {
	timeout, err := parseDuration("timeout", spec.Timeout)
	if err != nil {
		return domain.WorkflowDefinition{}, err
	}

	def := domain.WorkflowDefinition{
		ID:          spec.ID,
		Name:        spec.Name,
		Description: spec.Description,
		Version:     spec.Version,
		Timeout:     timeout,
		RetryCount:  spec.RetryCount,
		Tags:        append([]string(nil), spec.Tags...),
		Steps:       make([]domain.WorkflowStep, 0, len(spec.Steps)),
	}

	for _, s := range spec.Steps {
		stepTimeout, err := parseDuration("steps."+s.ID+".timeout", s.Timeout)
		if err != nil {
			return domain.WorkflowDefinition{}, err
		}
		delay, err := parseDuration("steps."+s.ID+".retry_delay", s.RetryDelay)
		if err != nil {
			return domain.WorkflowDefinition{}, err
		}
		wait, err := parseDuration("steps."+s.ID+".wait_duration", s.WaitDuration)
		if err != nil {
			return domain.WorkflowDefinition{}, err
		}

		step := domain.WorkflowStep{
			ID:           s.ID,
			Name:         s.Name,
			AgentID:      s.AgentID,
			Action:       s.Action,
			Timeout:      stepTimeout,
			RetryDelay:   delay,
			Condition:    s.Condition,
			Parameters:   domain.CloneMap(s.Parameters),
			Dependencies: append([]string(nil), s.Dependencies...),
			Optional:     s.Optional,

			Type:          domain.StepType(s.Type),
			Expression:    s.Expression,
			WaitDuration:  wait,
			WaitCondition: s.WaitCondition,
		}
		if s.RetryCount != nil {
			r := *s.RetryCount
			step.RetryCount = &r
		}
		if step.Name == "" {
			step.Name = s.ID
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

func ToSpec(def domain.WorkflowDefinition) types.WorkflowSpec {
	spec := types.WorkflowSpec{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Version:     def.Version,
		Timeout:     formatDuration(def.Timeout),
		RetryCount:  def.RetryCount,
		Tags:        append([]string(nil), def.Tags...),
		Steps:       make([]types.StepSpec, 0, len(def.Steps)),
	}
	for _, s := range def.Steps {
		step := types.StepSpec{
			ID:           s.ID,
			Name:         s.Name,
			AgentID:      s.AgentID,
			Action:       s.Action,
			Timeout:      formatDuration(s.Timeout),
			RetryDelay:   formatDuration(s.RetryDelay),
			Condition:    s.Condition,
			Parameters:   domain.CloneMap(s.Parameters),
			Dependencies: append([]string(nil), s.Dependencies...),
			Optional:     s.Optional,

			Type:          string(s.Type),
			Expression:    s.Expression,
			WaitDuration:  formatDuration(s.WaitDuration),
			WaitCondition: s.WaitCondition,
		}
		if s.RetryCount != nil {
			r := *s.RetryCount
			step.RetryCount = &r
		}
		spec.Steps = append(spec.Steps, step)
	}
	return spec
}

// Parse lê uma definição em YAML (JSON também é YAML válido)
func Parse(data []byte) (types.WorkflowSpec, error) {
	var spec types.WorkflowSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return types.WorkflowSpec{}, fmt.Errorf("parse workflow: %w", err)
	}
	spec.Steps = normalizeSteps(spec.Steps)
	return spec, nil
}

// LoadDir carrega *.yaml e *.yml de dir, em ordem alfabética
func LoadDir(dir string) ([]domain.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]domain.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		spec, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		def, err := FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// normalizeSteps mapas YAML com chaves não-string (ex.: `1: x`) chegam como
// map[interface{}]interface{}; parâmetros precisam ser JSON
func normalizeSteps(steps []types.StepSpec) []types.StepSpec {
	for i := range steps {
		if steps[i].Parameters != nil {
			steps[i].Parameters = normalizeMap(steps[i].Parameters)
		}
	}
	return steps
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, domain.NewValidationError(field, "invalid duration %q", value)
	}
	return d, nil
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
