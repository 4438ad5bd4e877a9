package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storeadapter "github.com/diogoX451/agentnet/internal/adapters/store"
	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/store/memory"
)

// flakyRepository recusa gravações de estado terminal enquanto failures > 0
type flakyRepository struct {
	ports.ExecutionRepository
	failures      atomic.Int32
	terminalSaves atomic.Int32
}

func newFlakyRepository(failures int32) *flakyRepository {
	r := &flakyRepository{ExecutionRepository: storeadapter.NewExecutionRepository(memory.New())}
	r.failures.Store(failures)
	return r
}

func (r *flakyRepository) Save(ctx context.Context, exec domain.WorkflowExecution) error {
	if exec.Status.Terminal() {
		r.terminalSaves.Add(1)
		if r.failures.Add(-1) >= 0 {
			return errors.New("store unavailable")
		}
	}
	return r.ExecutionRepository.Save(ctx, exec)
}

func TestEngine_TerminalSaveRetried(t *testing.T) {
	repo := newFlakyRepository(2)
	e, _ := newTestEngineWithRepo(t, newFakeGateway(t, testAgents()...), repo)
	require.NoError(t, e.RegisterWorkflow(chainWorkflow()))

	started, err := e.ExecuteWorkflow(context.Background(), "triage", nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, active := e.activeRun(started.ExecutionID)
		return !active
	}, 5*time.Second, 2*time.Millisecond)

	stored, err := repo.Get(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, stored.Status)
	assert.EqualValues(t, 3, repo.terminalSaves.Load())
}

func TestEngine_TerminalStateServedUntilPersisted(t *testing.T) {
	repo := newFlakyRepository(1000)
	e, _ := newTestEngineWithRepo(t, newFakeGateway(t, testAgents()...), repo)
	require.NoError(t, e.RegisterWorkflow(chainWorkflow()))

	started, err := e.ExecuteWorkflow(context.Background(), "triage", nil, "")
	require.NoError(t, err)

	var r *run
	require.Eventually(t, func() bool {
		var ok bool
		r, ok = e.activeRun(started.ExecutionID)
		return ok && r.detached()
	}, 5*time.Second, 2*time.Millisecond)

	// a gravação final nunca chegou ao repositório
	stored, err := repo.Get(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.False(t, stored.Status.Terminal())

	exec, err := e.GetExecution(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, domain.StepCompleted, exec.StepResults["step2"].Status)

	listed, err := e.ListExecutions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.ExecutionCompleted, listed[0].Status)

	assert.ErrorIs(t, e.CancelExecution(context.Background(), started.ExecutionID), domain.ErrExecutionFinished)

	// repositório ainda fora: a limpeza não perde o registro
	_, err = e.CleanupCompleted(context.Background(), time.Hour)
	require.NoError(t, err)
	_, still := e.activeRun(started.ExecutionID)
	assert.True(t, still)

	repo.failures.Store(0)
	removed, err := e.CleanupCompleted(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, still = e.activeRun(started.ExecutionID)
	assert.False(t, still)
	stored, err = repo.Get(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, stored.Status)
	assert.Equal(t, domain.StepCompleted, stored.StepResults["step2"].Status)
}
