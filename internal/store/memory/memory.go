package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/pkg/types"
)

// MemoryStore guarda os registros serializados em JSON, como o Redis faria,
// para que nenhum leitor compartilhe memória com quem gravou.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.ExecutionID][]byte
}

var _ store.ExecutionStore = (*MemoryStore)(nil)

func New() *MemoryStore {
	return &MemoryStore{records: make(map[types.ExecutionID][]byte)}
}

func (m *MemoryStore) SaveExecution(_ context.Context, rec *types.ExecutionRecord) error {
	rec.UpdatedAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	m.mu.Lock()
	m.records[rec.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id types.ExecutionID) (*types.ExecutionRecord, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return decode(data)
}

func (m *MemoryStore) ListExecutions(_ context.Context, userID string) ([]*types.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.ExecutionRecord, 0, len(m.records))
	for _, data := range m.records {
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) DeleteExecution(_ context.Context, id types.ExecutionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) FinishedBefore(_ context.Context, cutoff time.Time) ([]types.ExecutionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []types.ExecutionID
	for id, data := range m.records {
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		if rec.Status.Finished() && !rec.FinishedAt.IsZero() && rec.FinishedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }

func decode(data []byte) (*types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &rec, nil
}
