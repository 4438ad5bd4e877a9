package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/diogoX451/agentnet/internal/events"
	"github.com/diogoX451/agentnet/internal/events/nats"
	"github.com/diogoX451/agentnet/pkg/types"
)

// Acompanha os eventos de ciclo de vida publicados no JetStream
func main() {
	subject := types.Getenv("AGENTNET_TAIL_SUBJECT", events.SubjectAll)

	bus, err := nats.New(nats.Config{
		URL:           types.Getenv("AGENTNET_NATS_URL", "nats://localhost:4222"),
		Name:          "agentnet-event-tail",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	if err := bus.SetupStreams(); err != nil {
		log.Fatal("setup streams:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := bus.Subscribe(subject, func(ctx context.Context, msg events.Message) error {
		var env types.EventEnvelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			log.Printf("invalid event on %s: %v", msg.Subject(), err)
			return msg.Ack()
		}

		line := fmt.Sprintf("%s %-28s", env.Timestamp.Format(time.RFC3339Nano), env.Type)
		if env.ExecutionID != "" {
			line += " exec=" + env.ExecutionID
		}
		if env.StepID != "" {
			line += " step=" + env.StepID
		}
		if env.AgentID != "" {
			line += " agent=" + env.AgentID
		}
		if env.Status != "" {
			line += " status=" + env.Status
		}
		if env.Error != "" {
			line += fmt.Sprintf(" error=%q", env.Error)
		}
		fmt.Println(line)
		return msg.Ack()
	})
	if err != nil {
		log.Fatal("subscribe:", err)
	}
	defer sub.Unsubscribe()

	log.Printf("Tailing %s", subject)
	<-ctx.Done()
}
