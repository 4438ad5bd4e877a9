package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/pkg/types"
)

func TestMemoryStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &types.ExecutionRecord{
		ID:         "e-1",
		WorkflowID: "triage",
		UserID:     "u-1",
		Status:     types.ExecutionRunning,
		Steps:      map[string]*types.StepRecord{"assess": {ID: "assess", Status: "running"}},
		StartedAt:  time.Now(),
	}
	require.NoError(t, s.SaveExecution(ctx, rec))

	// alterar o registro original não afeta o que foi gravado
	rec.Steps["assess"].Status = "completed"

	got, err := s.GetExecution(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Steps["assess"].Status)

	rec.Status = types.ExecutionCompleted
	rec.FinishedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveExecution(ctx, rec))
	require.NoError(t, s.SaveExecution(ctx, &types.ExecutionRecord{ID: "e-2", UserID: "u-2", Status: types.ExecutionPending}))

	list, err := s.ListExecutions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	all, err := s.ListExecutions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ids, err := s.FinishedBefore(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []types.ExecutionID{"e-1"}, ids)

	require.NoError(t, s.DeleteExecution(ctx, "e-1"))
	_, err = s.GetExecution(ctx, "e-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteExecution(ctx, "e-1"), store.ErrNotFound)
}
