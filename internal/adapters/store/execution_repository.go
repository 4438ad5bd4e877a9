package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/pkg/types"
)

// ExecutionRepositoryImpl adapta um ExecutionStore (memória/Redis) para a interface do Core
type ExecutionRepositoryImpl struct {
	store store.ExecutionStore
}

// Verifica interface
var _ ports.ExecutionRepository = (*ExecutionRepositoryImpl)(nil)

func NewExecutionRepository(s store.ExecutionStore) *ExecutionRepositoryImpl {
	return &ExecutionRepositoryImpl{store: s}
}

func (r *ExecutionRepositoryImpl) Save(ctx context.Context, exec domain.WorkflowExecution) error {
	rec, err := toRecord(exec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ExecutionID, err)
	}
	return r.store.SaveExecution(ctx, rec)
}

func (r *ExecutionRepositoryImpl) Get(ctx context.Context, executionID string) (domain.WorkflowExecution, error) {
	rec, err := r.store.GetExecution(ctx, types.ExecutionID(executionID))
	if err != nil {
		return domain.WorkflowExecution{}, mapError(err, executionID)
	}
	return toDomain(rec)
}

func (r *ExecutionRepositoryImpl) List(ctx context.Context, userID string) ([]domain.WorkflowExecution, error) {
	recs, err := r.store.ListExecutions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowExecution, 0, len(recs))
	for _, rec := range recs {
		exec, err := toDomain(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (r *ExecutionRepositoryImpl) Delete(ctx context.Context, executionID string) error {
	return mapError(r.store.DeleteExecution(ctx, types.ExecutionID(executionID)), executionID)
}

func (r *ExecutionRepositoryImpl) FinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.store.FinishedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out, nil
}

func mapError(err error, executionID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewNotFoundError("execution", executionID)
	}
	return err
}

// Helpers de conversão
func toRecord(exec domain.WorkflowExecution) (*types.ExecutionRecord, error) {
	rec := &types.ExecutionRecord{
		ID:              types.ExecutionID(exec.ExecutionID),
		WorkflowID:      exec.WorkflowID,
		WorkflowVersion: exec.WorkflowVersion,
		UserID:          exec.UserID,
		Status:          types.ExecutionStatus(exec.Status),
		Steps:           make(map[string]*types.StepRecord, len(exec.StepResults)),
		Error:           exec.Error,
		CancelRequested: exec.CancelRequested,
		StartedAt:       exec.StartTime,
		FinishedAt:      exec.EndTime,
	}

	if exec.Parameters != nil {
		data, err := json.Marshal(exec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}
		rec.Parameters = data
	}

	for id, res := range exec.StepResults {
		step := &types.StepRecord{
			ID:         id,
			Status:     string(res.Status),
			Attempts:   res.Attempts,
			Error:      res.LastError,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if res.Output != nil {
			data, err := json.Marshal(res.Output)
			if err != nil {
				return nil, fmt.Errorf("step %s output: %w", id, err)
			}
			step.Output = data
		}
		rec.Steps[id] = step
	}
	return rec, nil
}

func toDomain(rec *types.ExecutionRecord) (domain.WorkflowExecution, error) {
	exec := domain.WorkflowExecution{
		ExecutionID:     string(rec.ID),
		WorkflowID:      rec.WorkflowID,
		WorkflowVersion: rec.WorkflowVersion,
		UserID:          rec.UserID,
		Status:          domain.ExecutionStatus(rec.Status),
		StepResults:     make(map[string]*domain.StepResult, len(rec.Steps)),
		StartTime:       rec.StartedAt,
		EndTime:         rec.FinishedAt,
		Error:           rec.Error,
		CancelRequested: rec.CancelRequested,
	}

	if len(rec.Parameters) > 0 {
		if err := json.Unmarshal(rec.Parameters, &exec.Parameters); err != nil {
			return domain.WorkflowExecution{}, fmt.Errorf("decode parameters of %s: %w", rec.ID, err)
		}
	}

	for id, step := range rec.Steps {
		res := &domain.StepResult{
			StepID:     id,
			Status:     domain.StepStatus(step.Status),
			Attempts:   step.Attempts,
			LastError:  step.Error,
			StartedAt:  step.StartedAt,
			FinishedAt: step.FinishedAt,
		}
		if len(step.Output) > 0 {
			if err := json.Unmarshal(step.Output, &res.Output); err != nil {
				return domain.WorkflowExecution{}, fmt.Errorf("decode output of %s/%s: %w", rec.ID, id, err)
			}
		}
		exec.StepResults[id] = res
	}
	return exec, nil
}
