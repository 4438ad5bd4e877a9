package store

import (
	"context"
	"errors"
	"time"

	"github.com/diogoX451/agentnet/pkg/types"
)

var ErrNotFound = errors.New("execution not found")

// ExecutionStore persistência de registros de execução (memória ou Redis).
// Os registros trafegam por valor; implementações nunca retêm ponteiros do chamador.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error
	GetExecution(ctx context.Context, id types.ExecutionID) (*types.ExecutionRecord, error)
	// ListExecutions userID vazio lista todas
	ListExecutions(ctx context.Context, userID string) ([]*types.ExecutionRecord, error)
	DeleteExecution(ctx context.Context, id types.ExecutionID) error

	// Cleanup
	FinishedBefore(ctx context.Context, cutoff time.Time) ([]types.ExecutionID, error)

	Close() error
}
