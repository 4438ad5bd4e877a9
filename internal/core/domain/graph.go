package domain

import (
	"regexp"
	"sort"
	"strings"
)

var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateDefinition checa a estrutura da definição e devolve as camadas topológicas.
// Não resolve agentes nem ações (isso depende do catálogo em runtime).
func ValidateDefinition(def WorkflowDefinition) ([][]string, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, NewValidationError("id", "workflow id is required")
	}
	if len(def.Steps) == 0 {
		return nil, NewValidationError("steps", "workflow %s has no steps", def.ID)
	}
	if def.RetryCount < 0 {
		return nil, NewValidationError("retry_count", "must be >= 0, got %d", def.RetryCount)
	}
	if def.Timeout < 0 {
		return nil, NewValidationError("timeout", "must be >= 0")
	}

	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if !stepIDPattern.MatchString(s.ID) {
			return nil, NewValidationError("steps.id", "invalid step id %q", s.ID)
		}
		if seen[s.ID] {
			return nil, NewValidationError("steps.id", "duplicate step id %s", s.ID)
		}
		seen[s.ID] = true

		if err := validateStepKind(s); err != nil {
			return nil, err
		}
		if s.RetryCount != nil && *s.RetryCount < 0 {
			return nil, NewValidationError("steps."+s.ID+".retry_count", "must be >= 0, got %d", *s.RetryCount)
		}
		if s.Timeout < 0 || s.RetryDelay < 0 {
			return nil, NewValidationError("steps."+s.ID, "timeout and retry_delay must be >= 0")
		}
	}

	for _, s := range def.Steps {
		deps := make(map[string]bool, len(s.Dependencies))
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return nil, NewValidationError("steps."+s.ID+".dependencies", "step depends on itself")
			}
			if !seen[dep] {
				return nil, NewValidationError("steps."+s.ID+".dependencies", "unknown dependency %s", dep)
			}
			if deps[dep] {
				return nil, NewValidationError("steps."+s.ID+".dependencies", "duplicate dependency %s", dep)
			}
			deps[dep] = true
		}
	}

	return Layers(def.Steps)
}

func validateStepKind(s WorkflowStep) error {
	field := "steps." + s.ID
	switch s.Kind() {
	case StepTypeAction:
		if s.AgentID == "" || s.Action == "" {
			return NewValidationError(field, "agent_id and action are required")
		}
	case StepTypeWait:
		if s.WaitDuration < 0 {
			return NewValidationError(field+".wait_duration", "must be >= 0")
		}
		if (s.WaitDuration > 0) == (s.WaitCondition != "") {
			return NewValidationError(field, "wait step needs exactly one of wait_duration or wait_condition")
		}
	case StepTypeCondition:
		if strings.TrimSpace(s.Expression) == "" {
			return NewValidationError(field+".expression", "condition step needs an expression")
		}
	default:
		return NewValidationError(field+".type", "unknown step type %q", s.Type)
	}
	return nil
}

// Layers ordena os steps em camadas (Kahn). Steps de uma camada só dependem
// de camadas anteriores; cada camada vem ordenada por id.
func Layers(steps []WorkflowStep) ([][]string, error) {
	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		inDegree[s.ID] += 0
		for _, dep := range s.Dependencies {
			inDegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var current []string
	for id, d := range inDegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	var layers [][]string
	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		layers = append(layers, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, child := range dependents[id] {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}

	if placed != len(inDegree) {
		var cyclic []string
		for id, d := range inDegree {
			if d > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return nil, NewValidationError("steps.dependencies", "dependency cycle among steps: %s", strings.Join(cyclic, ", "))
	}

	return layers, nil
}
