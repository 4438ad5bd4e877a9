package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diogoX451/agentnet/internal/events"
)

type NATSBus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Verifica interface
var _ events.Bus = (*NATSBus)(nil)

type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func New(cfg Config) (*NATSBus, error) {
	if cfg.Name == "" {
		cfg.Name = "agentnet"
	}
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Name(cfg.Name),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream init failed: %w", err)
	}

	return &NATSBus{
		conn: conn,
		js:   js,
	}, nil
}

// CreateStream cria stream se não existir
func (n *NATSBus) CreateStream(cfg events.StreamConfig) error {
	storage := nats.FileStorage
	if cfg.Storage == events.StorageMemory {
		storage = nats.MemoryStorage
	}

	_, err := n.js.AddStream(&nats.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: nats.LimitsPolicy,
		MaxMsgs:   cfg.MaxMsgs,
		MaxAge:    cfg.MaxAge,
		Storage:   storage,
	})

	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil // Já existe, ok
	}

	return err
}

// SetupStreams cria o stream de eventos de ciclo de vida
func (n *NATSBus) SetupStreams() error {
	// Limits: vários consumidores (UI, event-tail) leem o mesmo histórico
	if err := n.CreateStream(events.StreamConfig{
		Name:     events.StreamName,
		Subjects: []string{events.SubjectAll},
		MaxMsgs:  100000,
		MaxAge:   24 * time.Hour,
		Storage:  events.StorageFile,
	}); err != nil {
		return fmt.Errorf("events stream: %w", err)
	}
	return nil
}

// Publish envia mensagem bruta
func (n *NATSBus) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := n.js.Publish(subject, payload, nats.Context(ctx))
	return err
}

// PublishEvent serializa e envia
func (n *NATSBus) PublishEvent(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.Publish(ctx, subject, data)
}

// Subscribe registra handler push com consumer durável derivado do subject
func (n *NATSBus) Subscribe(subject string, handler events.Handler) (events.Subscription, error) {
	callback := func(msg *nats.Msg) {
		wrapped := &natsMessage{msg: msg}
		if err := handler(context.Background(), wrapped); err != nil {
			// Handler errou, não deu ack = redelivery automático
			return
		}
	}

	sub, err := n.js.Subscribe(subject, callback, nats.Durable(DurableName(subject)), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

// DurableName nome de consumer válido a partir de um subject ("agentnet.>" -> "agentnet__")
func DurableName(subject string) string {
	var b strings.Builder
	b.Grow(len(subject))
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Close encerra conexão
func (n *NATSBus) Close() error {
	n.conn.Close()
	return nil
}

// --- Implementações internas ---

type natsMessage struct {
	msg *nats.Msg
}

func (m *natsMessage) Data() []byte {
	return m.msg.Data
}

func (m *natsMessage) Subject() string {
	return m.msg.Subject
}

func (m *natsMessage) Ack() error {
	return m.msg.Ack()
}

func (m *natsMessage) Metadata() (*events.MsgMetadata, error) {
	meta, err := m.msg.Metadata()
	if err != nil {
		return nil, err
	}

	return &events.MsgMetadata{
		Sequence:   meta.Sequence.Stream,
		Time:       meta.Timestamp,
		Stream:     meta.Stream,
		Consumer:   meta.Consumer,
		Deliveries: int(meta.NumDelivered),
	}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
