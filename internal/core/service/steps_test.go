package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

func riskFromParams(_ context.Context, req domain.AgentRequest) domain.AgentResponse {
	return domain.NewSuccessResponse(req, map[string]any{"risk": req.Parameters["risk"]})
}

func TestEngine_ConditionStepPublishesResult(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	gw.handle("risk", "assess", riskFromParams)
	e, _ := newTestEngine(t, gw)

	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{
		ID: "branching",
		Steps: []domain.WorkflowStep{
			{ID: "assess", AgentID: "risk", Action: "assess"},
			{ID: "check", Type: domain.StepTypeCondition, Dependencies: []string{"assess"},
				Expression: `steps.assess.output.risk > 0.5`},
			{ID: "alert", AgentID: "comms", Action: "send", Dependencies: []string{"check"},
				Condition: `steps.check.output.condition_result == true`},
		},
	}))

	low, err := e.ExecuteWorkflow(context.Background(), "branching", map[string]any{"risk": 0.3}, "")
	require.NoError(t, err)
	exec := waitTerminal(t, e, low.ExecutionID)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	check := exec.StepResults["check"]
	assert.Equal(t, domain.StepCompleted, check.Status)
	assert.Equal(t, 1, check.Attempts)
	assert.Equal(t, map[string]any{"condition_result": false}, check.Output)
	assert.Empty(t, gw.requestsFor(exec.ExecutionID, "check"))
	assert.Equal(t, domain.StepSkipped, exec.StepResults["alert"].Status)

	high, err := e.ExecuteWorkflow(context.Background(), "branching", map[string]any{"risk": 0.9}, "")
	require.NoError(t, err)
	exec = waitTerminal(t, e, high.ExecutionID)

	assert.Equal(t, map[string]any{"condition_result": true}, exec.StepResults["check"].Output)
	assert.Equal(t, domain.StepCompleted, exec.StepResults["alert"].Status)
	assert.Len(t, gw.requestsFor(exec.ExecutionID, "alert"), 1)
}

func TestEngine_ConditionStepRuntimeErrorFails(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	e, _ := newTestEngine(t, gw)

	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{
		ID: "broken-branch",
		Steps: []domain.WorkflowStep{
			{ID: "check", Type: domain.StepTypeCondition, Expression: `steps.ghost.output.value > 1`},
		},
	}))

	started, err := e.ExecuteWorkflow(context.Background(), "broken-branch", nil, "")
	require.NoError(t, err)
	exec := waitTerminal(t, e, started.ExecutionID)

	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Equal(t, domain.StepFailed, exec.StepResults["check"].Status)
	assert.Contains(t, exec.StepResults["check"].LastError, "expression: ")
}

func TestEngine_WaitDuration(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	e, _ := newTestEngine(t, gw)

	def := chainWorkflow()
	def.Steps = append(def.Steps, domain.WorkflowStep{
		ID: "pause", Type: domain.StepTypeWait, WaitDuration: 30 * time.Millisecond,
	})
	def.Steps[1].Dependencies = []string{"step1", "pause"}
	require.NoError(t, e.RegisterWorkflow(def))

	started, err := e.ExecuteWorkflow(context.Background(), "triage", nil, "")
	require.NoError(t, err)
	exec := waitTerminal(t, e, started.ExecutionID)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	pause := exec.StepResults["pause"]
	assert.Equal(t, domain.StepCompleted, pause.Status)
	assert.Equal(t, map[string]any{"wait_completed": true}, pause.Output)
	assert.GreaterOrEqual(t, pause.FinishedAt.Sub(pause.StartedAt), 30*time.Millisecond)
	assert.Empty(t, gw.requestsFor(exec.ExecutionID, "pause"))
	assert.False(t, exec.StepResults["step2"].StartedAt.Before(pause.FinishedAt))
}

func TestEngine_WaitConditionPollsSibling(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.handle("risk", "assess", func(_ context.Context, req domain.AgentRequest) domain.AgentResponse {
		close(entered)
		<-release
		return domain.NewSuccessResponse(req, nil)
	})
	e, _ := newTestEngine(t, gw)

	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{
		ID: "gated",
		Steps: []domain.WorkflowStep{
			{ID: "slow", AgentID: "risk", Action: "assess"},
			{ID: "gate", Type: domain.StepTypeWait, Timeout: 5 * time.Second,
				WaitCondition: `"slow" in steps && steps.slow.status == "completed"`},
			{ID: "notify", AgentID: "comms", Action: "send", Dependencies: []string{"gate"}},
		},
	}))

	started, err := e.ExecuteWorkflow(context.Background(), "gated", nil, "")
	require.NoError(t, err)
	<-entered

	// a condição é consultada várias vezes enquanto o irmão não termina
	time.Sleep(30 * time.Millisecond)
	mid, err := e.GetExecution(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepRunning, mid.StepResults["gate"].Status)

	close(release)
	exec := waitTerminal(t, e, started.ExecutionID)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, domain.StepCompleted, exec.StepResults["gate"].Status)
	assert.False(t, exec.StepResults["gate"].FinishedAt.Before(exec.StepResults["slow"].FinishedAt))
	assert.Equal(t, domain.StepCompleted, exec.StepResults["notify"].Status)
}

func TestEngine_WaitConditionTimesOut(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	e, _ := newTestEngine(t, gw)

	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{
		ID: "never",
		Steps: []domain.WorkflowStep{
			{ID: "gate", Type: domain.StepTypeWait, Timeout: 40 * time.Millisecond,
				WaitCondition: `params.ready == true`},
			{ID: "notify", AgentID: "comms", Action: "send", Dependencies: []string{"gate"}},
		},
	}))

	started, err := e.ExecuteWorkflow(context.Background(), "never", map[string]any{"ready": false}, "")
	require.NoError(t, err)
	exec := waitTerminal(t, e, started.ExecutionID)

	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Equal(t, domain.StepFailed, exec.StepResults["gate"].Status)
	assert.Equal(t, "wait condition not met after 40ms", exec.StepResults["gate"].LastError)
	assert.Equal(t, domain.StepPending, exec.StepResults["notify"].Status)
	assert.Empty(t, gw.requestsFor(exec.ExecutionID, "notify"))

	ready, err := e.ExecuteWorkflow(context.Background(), "never", map[string]any{"ready": true}, "")
	require.NoError(t, err)
	exec = waitTerminal(t, e, ready.ExecutionID)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
}

func TestEngine_CancelDuringWait(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	e, _ := newTestEngine(t, gw)

	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{
		ID: "sleepy",
		Steps: []domain.WorkflowStep{
			{ID: "pause", Type: domain.StepTypeWait, WaitDuration: time.Minute},
			{ID: "notify", AgentID: "comms", Action: "send", Dependencies: []string{"pause"}},
		},
	}))

	started, err := e.ExecuteWorkflow(context.Background(), "sleepy", nil, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		exec, err := e.GetExecution(context.Background(), started.ExecutionID)
		return err == nil && exec.StepResults["pause"].Status == domain.StepRunning
	}, time.Second, time.Millisecond)

	require.NoError(t, e.CancelExecution(context.Background(), started.ExecutionID))
	exec := waitTerminal(t, e, started.ExecutionID)

	assert.Equal(t, domain.ExecutionCancelled, exec.Status)
	assert.Equal(t, domain.StepFailed, exec.StepResults["pause"].Status)
	assert.Equal(t, "execution cancelled", exec.StepResults["pause"].LastError)
	assert.Equal(t, domain.StepPending, exec.StepResults["notify"].Status)
}

func TestEngine_RegisterStepKindValidation(t *testing.T) {
	gw := newFakeGateway(t, testAgents()...)
	e, _ := newTestEngine(t, gw)

	tests := []struct {
		name    string
		step    domain.WorkflowStep
		wantErr string
	}{
		{"unknown type", domain.WorkflowStep{ID: "x", Type: "loop"}, `unknown step type "loop"`},
		{"wait without target", domain.WorkflowStep{ID: "x", Type: domain.StepTypeWait},
			"exactly one of wait_duration or wait_condition"},
		{"wait with both", domain.WorkflowStep{ID: "x", Type: domain.StepTypeWait,
			WaitDuration: time.Second, WaitCondition: "true"}, "exactly one of wait_duration or wait_condition"},
		{"condition without expression", domain.WorkflowStep{ID: "x", Type: domain.StepTypeCondition},
			"condition step needs an expression"},
		{"bad expression", domain.WorkflowStep{ID: "x", Type: domain.StepTypeCondition, Expression: "1 +"},
			"steps.x.expression"},
		{"bad wait condition", domain.WorkflowStep{ID: "x", Type: domain.StepTypeWait, WaitCondition: "params. =="},
			"steps.x.wait_condition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.RegisterWorkflow(domain.WorkflowDefinition{ID: "kinds", Steps: []domain.WorkflowStep{tt.step}})
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "%v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	// steps sem agente não passam pelo catálogo
	require.NoError(t, e.RegisterWorkflow(domain.WorkflowDefinition{ID: "kinds", Steps: []domain.WorkflowStep{
		{ID: "pause", Type: domain.StepTypeWait, WaitDuration: time.Millisecond},
		{ID: "check", Type: domain.StepTypeCondition, Expression: "true", Dependencies: []string{"pause"}},
	}}))
}
