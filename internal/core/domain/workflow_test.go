package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionClone_IsIndependent(t *testing.T) {
	def := WorkflowDefinition{ID: "w", Version: 2, Steps: []WorkflowStep{step("a")}}
	exec := NewExecution("e1", def, map[string]any{"patient": map[string]any{"age": 40}}, "u1")
	exec.StepResults["a"].Output = map[string]any{"tags": []any{"x"}}

	snap := exec.Clone()
	snap.StepResults["a"].Status = StepFailed
	snap.StepResults["a"].Output["tags"].([]any)[0] = "mutated"
	snap.Parameters["patient"].(map[string]any)["age"] = 99

	assert.Equal(t, StepPending, exec.StepResults["a"].Status)
	assert.Equal(t, "x", exec.StepResults["a"].Output["tags"].([]any)[0])
	assert.Equal(t, 40, exec.Parameters["patient"].(map[string]any)["age"])
	assert.Equal(t, 2, snap.WorkflowVersion)
}

func TestExecutionProgress(t *testing.T) {
	def := WorkflowDefinition{ID: "w", Steps: []WorkflowStep{step("a"), step("b", "a"), step("c", "a"), step("d", "b")}}
	exec := NewExecution("e1", def, nil, "u1")
	exec.Status = ExecutionRunning
	exec.StepResults["a"].Status = StepCompleted
	exec.StepResults["b"].Status = StepRunning
	exec.StepResults["c"].Status = StepSkipped

	p := exec.Progress(def)
	assert.Equal(t, 4, p.TotalSteps)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Skipped)
	assert.Equal(t, 1, p.Running)
	assert.Equal(t, 1, p.Pending)
	assert.InDelta(t, 50.0, p.Percentage, 1e-9)
	assert.Equal(t, []string{"b"}, p.CurrentSteps)
	require.Len(t, p.Steps, 4)
	assert.Equal(t, "a", p.Steps[0].StepID)
}

func TestStepRetries(t *testing.T) {
	two := 2
	def := WorkflowDefinition{RetryCount: 1}
	assert.Equal(t, 1, WorkflowStep{}.Retries(def))
	assert.Equal(t, 2, WorkflowStep{RetryCount: &two}.Retries(def))

	zero := 0
	assert.Equal(t, 0, WorkflowStep{RetryCount: &zero}.Retries(def))
}
