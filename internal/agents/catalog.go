package agents

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// ActionCatalog índice agente -> ação -> schema compilado.
// Usado no registro de workflows (a ação existe?) e no dispatch (os parâmetros batem?).
type ActionCatalog struct {
	mu      sync.RWMutex
	actions map[string]map[string]catalogEntry
}

type catalogEntry struct {
	capability domain.Capability
	schema     *jsonschema.Schema
}

func NewActionCatalog() *ActionCatalog {
	return &ActionCatalog{actions: make(map[string]map[string]catalogEntry)}
}

// Register indexa as capacidades do agente, compilando os schemas
func (c *ActionCatalog) Register(agent domain.Agent) error {
	entries := make(map[string]catalogEntry, len(agent.Capabilities))
	for _, capability := range agent.Capabilities {
		if capability.Action == "" {
			return domain.NewValidationError("capabilities.action", "agent %s has a capability without action", agent.ID)
		}
		if _, exists := entries[capability.Action]; exists {
			return domain.NewValidationError("capabilities.action", "duplicate action %s for agent %s", capability.Action, agent.ID)
		}

		entry := catalogEntry{capability: capability}
		if len(capability.Schema) > 0 && string(capability.Schema) != "null" {
			compiler := jsonschema.NewCompiler()
			schema, err := compiler.Compile([]byte(capability.Schema))
			if err != nil {
				return domain.NewValidationError("capabilities."+capability.Action+".schema", "invalid schema: %v", err)
			}
			entry.schema = schema
		}
		entries[capability.Action] = entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.actions[agent.ID]; exists {
		return domain.NewValidationError("id", "agent already registered: %s", agent.ID)
	}
	c.actions[agent.ID] = entries
	return nil
}

// Resolve confirma que o agente anuncia a ação
func (c *ActionCatalog) Resolve(agentID, action string) error {
	_, err := c.lookup(agentID, action)
	return err
}

// Validate aplica o schema da ação (se houver) aos parâmetros
func (c *ActionCatalog) Validate(agentID, action string, params map[string]any) error {
	entry, err := c.lookup(agentID, action)
	if err != nil {
		return err
	}
	if entry.schema == nil {
		return nil
	}

	// o validador trabalha sobre tipos JSON genéricos (float64, []any, map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return domain.NewValidationError("parameters", "not JSON encodable: %v", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return domain.NewValidationError("parameters", "not JSON encodable: %v", err)
	}
	result := entry.schema.Validate(instance)
	if !result.IsValid() {
		return domain.NewValidationError("parameters", "%s.%s: %s", agentID, action, fmt.Sprint(result.Error()))
	}
	return nil
}

func (c *ActionCatalog) lookup(agentID, action string) (catalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	actions, ok := c.actions[agentID]
	if !ok {
		return catalogEntry{}, domain.NewNotFoundError("agent", agentID)
	}
	entry, ok := actions[action]
	if !ok {
		return catalogEntry{}, domain.NewValidationError("action", "agent %s does not support action %s", agentID, action)
	}
	return entry, nil
}
