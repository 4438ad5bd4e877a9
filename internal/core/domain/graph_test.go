package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func step(id string, deps ...string) WorkflowStep {
	return WorkflowStep{ID: id, AgentID: "agent", Action: "act", Dependencies: deps}
}

func TestValidateDefinition_Layers(t *testing.T) {
	def := WorkflowDefinition{
		ID: "consult",
		Steps: []WorkflowStep{
			step("report", "risk", "pricing"),
			step("intake"),
			step("risk", "intake"),
			step("pricing", "intake"),
		},
	}

	layers, err := ValidateDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"intake"}, {"pricing", "risk"}, {"report"}}, layers)
}

func TestValidateDefinition_Rejects(t *testing.T) {
	neg := -1
	tests := []struct {
		name string
		def  WorkflowDefinition
		msg  string
	}{
		{"missing id", WorkflowDefinition{Steps: []WorkflowStep{step("a")}}, "workflow id is required"},
		{"no steps", WorkflowDefinition{ID: "w"}, "has no steps"},
		{"duplicate step", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a"), step("a")}}, "duplicate step id a"},
		{"dangling dependency", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a", "ghost")}}, "unknown dependency ghost"},
		{"self dependency", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a", "a")}}, "depends on itself"},
		{"cycle", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a", "b"), step("b", "a")}}, "dependency cycle among steps: a, b"},
		{"bad id", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a.b")}}, "invalid step id"},
		{"negative retries", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{{ID: "a", AgentID: "x", Action: "y", RetryCount: &neg}}}, "must be >= 0"},
		{"missing action", WorkflowDefinition{ID: "w", Steps: []WorkflowStep{{ID: "a", AgentID: "x"}}}, "agent_id and action are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDefinition(tt.def)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLayers_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "n")
		steps := make([]WorkflowStep, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("dep_%d_%d", i, j)) {
					deps = append(deps, fmt.Sprintf("s%d", j))
				}
			}
			steps[i] = step(fmt.Sprintf("s%d", i), deps...)
		}

		layers, err := Layers(steps)
		if err != nil {
			rt.Fatalf("acyclic graph rejected: %v", err)
		}

		level := make(map[string]int)
		for i, layer := range layers {
			for _, id := range layer {
				if _, dup := level[id]; dup {
					rt.Fatalf("step %s placed twice", id)
				}
				level[id] = i
			}
		}
		if len(level) != n {
			rt.Fatalf("expected %d steps placed, got %d", n, len(level))
		}
		for _, s := range steps {
			for _, dep := range s.Dependencies {
				if level[dep] >= level[s.ID] {
					rt.Fatalf("step %s (layer %d) not after dependency %s (layer %d)", s.ID, level[s.ID], dep, level[dep])
				}
			}
		}

		if n > 1 {
			// fecha um ciclo do último para o primeiro
			steps[0].Dependencies = append(steps[0].Dependencies, fmt.Sprintf("s%d", n-1))
			if !hasPath(steps, fmt.Sprintf("s%d", n-1), "s0") {
				return
			}
			if _, err := Layers(steps); err == nil {
				rt.Fatalf("cycle not detected")
			}
		}
	})
}

// hasPath indica se to é alcançável a partir de from seguindo dependências
func hasPath(steps []WorkflowStep, from, to string) bool {
	deps := make(map[string][]string)
	for _, s := range steps {
		deps[s.ID] = s.Dependencies
	}
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(id string) bool {
		if id == to {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		for _, d := range deps[id] {
			if walk(d) {
				return true
			}
		}
		return false
	}
	return walk(from)
}
