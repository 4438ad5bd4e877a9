package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/events"
	"github.com/diogoX451/agentnet/pkg/types"
)

// BusPublisher adapta o barramento (NATS JetStream) para o EventPublisher do Core
type BusPublisher struct {
	bus events.Bus
}

var _ ports.EventPublisher = (*BusPublisher)(nil)

func NewBusPublisher(bus events.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

// Publish agentnet.<tipo>, ex.: agentnet.step.failed
func (p *BusPublisher) Publish(ctx context.Context, event domain.Event) error {
	return p.bus.PublishEvent(ctx, Subject(event.Type), Envelope(event))
}

func (p *BusPublisher) Close() error {
	return p.bus.Close()
}

func Subject(t domain.EventType) string {
	return events.SubjectPrefix + string(t)
}

func Envelope(event domain.Event) types.EventEnvelope {
	return types.EventEnvelope{
		Type:        string(event.Type),
		ExecutionID: event.ExecutionID,
		WorkflowID:  event.WorkflowID,
		StepID:      event.StepID,
		AgentID:     event.AgentID,
		UserID:      event.UserID,
		Status:      event.Status,
		Previous:    event.Previous,
		Attempts:    event.Attempts,
		Error:       event.Error,
		Timestamp:   event.Timestamp,
	}
}

// LogPublisher registra eventos no log (usado quando NATS está desabilitado)
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(zap.String("component", "events"))}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	fields := []zap.Field{zap.String("type", string(event.Type))}
	if event.ExecutionID != "" {
		fields = append(fields, zap.String("execution_id", event.ExecutionID))
	}
	if event.StepID != "" {
		fields = append(fields, zap.String("step_id", event.StepID))
	}
	if event.AgentID != "" {
		fields = append(fields, zap.String("agent_id", event.AgentID))
	}
	if event.Status != "" {
		fields = append(fields, zap.String("status", event.Status))
	}
	if event.Previous != "" {
		fields = append(fields, zap.String("previous", event.Previous))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	p.logger.Debug("event", fields...)
	return nil
}

// Multi entrega para todos; uma falha não impede os demais
type Multi []ports.EventPublisher

func (m Multi) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
