package events

import (
	"context"
	"time"
)

// Bus abstração de fila de eventos
type Bus interface {
	// Publicação
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishEvent(ctx context.Context, subject string, event any) error

	// Subscrição push (callback)
	Subscribe(subject string, handler Handler) (Subscription, error)

	// Streams
	CreateStream(cfg StreamConfig) error

	Close() error
}

// Handler processa mensagens
type Handler func(ctx context.Context, msg Message) error

type Message interface {
	Data() []byte
	Subject() string
	Ack() error
	Metadata() (*MsgMetadata, error)
}

type MsgMetadata struct {
	Sequence   uint64
	Time       time.Time
	Stream     string
	Consumer   string
	Deliveries int
}

type Subscription interface {
	Unsubscribe() error
}

type StreamConfig struct {
	Name     string
	Subjects []string
	MaxMsgs  int64
	MaxAge   time.Duration
	Storage  StorageType
}

type StorageType int

const (
	StorageFile StorageType = iota
	StorageMemory
)

// Subjects
const (
	StreamName    = "AGENTNET_EVENTS"
	SubjectPrefix = "agentnet."
	SubjectAll    = SubjectPrefix + ">"
)
