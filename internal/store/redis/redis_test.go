package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/pkg/types"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := New(Config{Addr: mr.Addr(), ExecutionTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func record(id, user string, status types.ExecutionStatus) *types.ExecutionRecord {
	rec := &types.ExecutionRecord{
		ID:         types.ExecutionID(id),
		WorkflowID: "triage",
		UserID:     user,
		Status:     status,
		Parameters: types.Data(`{"age":40}`),
		StartedAt:  time.Now().Add(-time.Minute),
		Steps: map[string]*types.StepRecord{
			"assess": {ID: "assess", Status: "completed", Attempts: 1, Output: types.Data(`{"risk":0.8}`)},
		},
	}
	if status.Finished() {
		rec.FinishedAt = time.Now()
	}
	return rec
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e-1", "u-1", types.ExecutionRunning)))

	got, err := s.GetExecution(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionRunning, got.Status)
	assert.Equal(t, "triage", got.WorkflowID)
	assert.JSONEq(t, `{"age":40}`, string(got.Parameters))
	require.Contains(t, got.Steps, "assess")
	assert.Equal(t, 1, got.Steps["assess"].Attempts)
	assert.False(t, got.UpdatedAt.IsZero())

	// em andamento não expira
	assert.Zero(t, mr.TTL("execution:e-1"))

	require.NoError(t, s.SaveExecution(ctx, record("e-1", "u-1", types.ExecutionCompleted)))
	assert.Equal(t, time.Hour, mr.TTL("execution:e-1"))
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, s := setupStore(t)
	_, err := s.GetExecution(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStore_ListByUser(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e-1", "u-1", types.ExecutionRunning)))
	require.NoError(t, s.SaveExecution(ctx, record("e-2", "u-1", types.ExecutionFailed)))
	require.NoError(t, s.SaveExecution(ctx, record("e-3", "u-2", types.ExecutionRunning)))

	mine, err := s.ListExecutions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := s.ListExecutions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListExecutions(ctx, "u-9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisStore_ExpiredRecordsLeaveTheIndex(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExecution(ctx, record("e-1", "u-1", types.ExecutionCompleted)))
	require.NoError(t, s.SaveExecution(ctx, record("e-2", "u-1", types.ExecutionRunning)))

	mr.FastForward(2 * time.Hour)

	got, err := s.ListExecutions(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ExecutionID("e-2"), got[0].ID)

	members, err := mr.SMembers("user:u-1:executions")
	require.NoError(t, err)
	assert.Equal(t, []string{"e-2"}, members)
}

func TestRedisStore_FinishedBeforeAndDelete(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	old := record("old", "u-1", types.ExecutionCompleted)
	old.FinishedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.SaveExecution(ctx, old))
	require.NoError(t, s.SaveExecution(ctx, record("fresh", "u-1", types.ExecutionFailed)))
	require.NoError(t, s.SaveExecution(ctx, record("live", "u-1", types.ExecutionRunning)))

	ids, err := s.FinishedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []types.ExecutionID{"old"}, ids)

	require.NoError(t, s.DeleteExecution(ctx, "old"))
	assert.False(t, mr.Exists("execution:old"))

	ids, err = s.FinishedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	mine, err := s.ListExecutions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assert.ErrorIs(t, s.DeleteExecution(ctx, "old"), store.ErrNotFound)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1"})
	assert.ErrorContains(t, err, "redis connection failed")
}
