package ports

import (
	"context"
	"time"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// ExecutionRepository abstração de persistência das execuções
// Implementado em infra (memória/Redis), usado em service.
// Save sempre recebe um snapshot; Get sempre devolve uma cópia.
type ExecutionRepository interface {
	Save(ctx context.Context, exec domain.WorkflowExecution) error
	Get(ctx context.Context, executionID string) (domain.WorkflowExecution, error)
	List(ctx context.Context, userID string) ([]domain.WorkflowExecution, error)
	Delete(ctx context.Context, executionID string) error

	// FinishedBefore ids de execuções terminais com fim anterior a cutoff
	FinishedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
