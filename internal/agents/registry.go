package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diogoX451/agentnet/internal/config"
	"github.com/diogoX451/agentnet/internal/core/domain"
)

// FromConfig converte o catálogo estático da configuração em agentes
func FromConfig(defs []config.AgentConfig) ([]domain.Agent, error) {
	out := make([]domain.Agent, 0, len(defs))
	for _, def := range defs {
		agent := domain.Agent{
			ID:      def.ID,
			Name:    def.Name,
			BaseURL: def.BaseURL,
			Status:  domain.AgentUnknown,
		}
		if agent.Name == "" {
			agent.Name = def.ID
		}
		for _, c := range def.Capabilities {
			capability := domain.Capability{Action: c.Action, Description: c.Description}
			if schema := strings.TrimSpace(c.Schema); schema != "" {
				if !json.Valid([]byte(schema)) {
					return nil, fmt.Errorf("agent %s action %s: schema is not valid JSON", def.ID, c.Action)
				}
				capability.Schema = json.RawMessage(schema)
			}
			agent.Capabilities = append(agent.Capabilities, capability)
		}
		out = append(out, agent)
	}
	return out, nil
}

// RegisterAll registra todos os agentes, parando no primeiro erro
func RegisterAll(m *Manager, agents []domain.Agent) error {
	for _, a := range agents {
		if err := m.RegisterAgent(a); err != nil {
			return fmt.Errorf("register agent %s: %w", a.ID, err)
		}
	}
	return nil
}
