package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentUnavailable chamada recusada sem tráfego de rede (agente OFFLINE)
	ErrAgentUnavailable = errors.New("agent offline")
	// ErrStepExhaustedRetries todas as tentativas do step falharam
	ErrStepExhaustedRetries = errors.New("step exhausted retries")
	// ErrExecutionFinished execução já está em estado terminal
	ErrExecutionFinished = errors.New("execution already finished")
	// ErrManagerStopped o manager não pode ser reiniciado depois de Stop
	ErrManagerStopped = errors.New("agent manager stopped")
)

// ValidationError entrada rejeitada no registro de agente ou workflow
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError id desconhecido (workflow, execução, agente)
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
