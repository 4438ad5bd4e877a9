package ports

import (
	"context"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

// EventPublisher canal lateral de eventos de ciclo de vida.
// Falhas de publicação são logadas por quem chama e nunca alteram a execução.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventPublisherFunc adapta uma função para EventPublisher
type EventPublisherFunc func(ctx context.Context, event domain.Event) error

func (f EventPublisherFunc) Publish(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}
