package service

import (
	"sort"
	"sync"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// registeredWorkflow definição validada + camadas topológicas pré-calculadas
type registeredWorkflow struct {
	def    domain.WorkflowDefinition
	layers [][]string
}

// DefinitionStore guarda templates versionados. (id, version) é imutável;
// Get devolve a maior versão.
type DefinitionStore struct {
	mu       sync.RWMutex
	versions map[string]map[int]*registeredWorkflow
	latest   map[string]int
}

func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{
		versions: make(map[string]map[int]*registeredWorkflow),
		latest:   make(map[string]int),
	}
}

func (s *DefinitionStore) add(wf *registeredWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, version := wf.def.ID, wf.def.Version
	byVersion, ok := s.versions[id]
	if !ok {
		byVersion = make(map[int]*registeredWorkflow)
		s.versions[id] = byVersion
	}
	if _, exists := byVersion[version]; exists {
		return domain.NewValidationError("version", "workflow %s version %d already registered", id, version)
	}
	byVersion[version] = wf
	if version > s.latest[id] {
		s.latest[id] = version
	}
	return nil
}

func (s *DefinitionStore) get(id string) (*registeredWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVersion, ok := s.versions[id]
	if !ok {
		return nil, false
	}
	wf, ok := byVersion[s.latest[id]]
	return wf, ok
}

func (s *DefinitionStore) getVersion(id string, version int) (*registeredWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.versions[id][version]
	return wf, ok
}

// List última versão de cada workflow, por id
func (s *DefinitionStore) List() []domain.WorkflowDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WorkflowDefinition, 0, len(s.versions))
	for id, byVersion := range s.versions {
		out = append(out, byVersion[s.latest[id]].def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
