package ports

import (
	"context"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// AgentTransport fala o protocolo de fio com um agente remoto.
// Uma única instância é compartilhada por todas as sondas e chamadas.
type AgentTransport interface {
	Open(ctx context.Context) error
	Probe(ctx context.Context, agent domain.Agent) error
	// Call retorna erro para falhas de transporte (timeout, HTTP não-2xx, corpo inválido);
	// falhas declaradas pelo agente vêm como resposta com Success=false.
	Call(ctx context.Context, agent domain.Agent, req domain.AgentRequest) (domain.AgentResponse, error)
	Close() error
}

// AgentGateway o que o engine precisa do AgentManager
type AgentGateway interface {
	SendRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse
	// ResolveAction valida agente+ação contra o catálogo de capacidades
	ResolveAction(agentID, action string) error
	// ValidateParameters valida parâmetros renderizados contra o schema da ação
	ValidateParameters(agentID, action string, params map[string]any) error
}
