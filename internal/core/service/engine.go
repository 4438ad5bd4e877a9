package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/metrics"
)

var errEngineClosed = errors.New("workflow engine is shutting down")

type EngineConfig struct {
	// DefaultStepTimeout usado quando o step não define timeout
	DefaultStepTimeout time.Duration
	// RetryDelay espera fixa entre tentativas (o step pode sobrescrever)
	RetryDelay time.Duration
	// EventTimeout limite para publicar um evento
	EventTimeout time.Duration
	// WaitPollInterval intervalo entre avaliações de wait_condition
	WaitPollInterval time.Duration
	// SaveAttempts tentativas de gravar o estado terminal; SaveRetryDelay
	// é a espera inicial (dobra a cada tentativa)
	SaveAttempts   int
	SaveRetryDelay time.Duration
}

func (c *EngineConfig) applyDefaults() {
	if c.DefaultStepTimeout <= 0 {
		c.DefaultStepTimeout = 30 * time.Second
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 2 * time.Second
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = time.Second
	}
	if c.SaveAttempts <= 0 {
		c.SaveAttempts = 5
	}
	if c.SaveRetryDelay <= 0 {
		c.SaveRetryDelay = 100 * time.Millisecond
	}
}

type EngineOption func(*Engine)

func WithEvents(p ports.EventPublisher) EngineOption {
	return func(e *Engine) { e.events = p }
}

func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.metrics = c }
}

// WithIDGenerator troca o gerador de ids de execução (testes)
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// Engine resolve a ordem de dependências e conduz cada execução em sua
// própria goroutine, despachando os steps pelo AgentGateway.
type Engine struct {
	agents  ports.AgentGateway
	repo    ports.ExecutionRepository
	events  ports.EventPublisher
	metrics *metrics.Collector
	logger  *zap.Logger
	cfg     EngineConfig

	definitions *DefinitionStore
	conditions  *ConditionEvaluator
	newID       func() string

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

func NewEngine(agents ports.AgentGateway, repo ports.ExecutionRepository, cfg EngineConfig, logger *zap.Logger, opts ...EngineOption) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		agents:      agents,
		repo:        repo,
		logger:      logger.With(zap.String("component", "workflow_engine")),
		cfg:         cfg,
		definitions: NewDefinitionStore(),
		conditions:  NewConditionEvaluator(),
		newID:       uuid.NewString,
		runs:        make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterWorkflow valida e armazena a definição: ids únicos, dependências
// existentes, grafo acíclico, ações anunciadas pelos agentes e condições compiláveis.
func (e *Engine) RegisterWorkflow(def domain.WorkflowDefinition) error {
	def = def.Clone()
	if def.Version == 0 {
		def.Version = 1
	}

	layers, err := domain.ValidateDefinition(def)
	if err != nil {
		return err
	}

	for _, step := range def.Steps {
		if step.Kind() == domain.StepTypeAction {
			if err := e.agents.ResolveAction(step.AgentID, step.Action); err != nil {
				if domain.IsValidation(err) {
					return err
				}
				return domain.NewValidationError("steps."+step.ID, "%v", err)
			}
		}
		expressions := map[string]string{
			"condition":      step.Condition,
			"expression":     step.Expression,
			"wait_condition": step.WaitCondition,
		}
		for field, expression := range expressions {
			if expression == "" {
				continue
			}
			if _, err := e.conditions.Compile(expression); err != nil {
				return domain.NewValidationError("steps."+step.ID+"."+field, "%v", err)
			}
		}
	}

	if err := e.definitions.add(&registeredWorkflow{def: def, layers: layers}); err != nil {
		return err
	}

	e.logger.Info("workflow registered",
		zap.String("workflow_id", def.ID),
		zap.Int("version", def.Version),
		zap.Int("steps", len(def.Steps)),
		zap.Int("layers", len(layers)))
	return nil
}

func (e *Engine) GetWorkflow(id string) (domain.WorkflowDefinition, error) {
	wf, ok := e.definitions.get(id)
	if !ok {
		return domain.WorkflowDefinition{}, domain.NewNotFoundError("workflow", id)
	}
	return wf.def.Clone(), nil
}

func (e *Engine) GetWorkflowVersion(id string, version int) (domain.WorkflowDefinition, error) {
	wf, ok := e.definitions.getVersion(id, version)
	if !ok {
		return domain.WorkflowDefinition{}, domain.NewNotFoundError("workflow", fmt.Sprintf("%s@%d", id, version))
	}
	return wf.def.Clone(), nil
}

func (e *Engine) ListWorkflows() []domain.WorkflowDefinition {
	return e.definitions.List()
}

// ExecuteWorkflow cria a execução, inicia o driver e retorna imediatamente
// com o snapshot RUNNING.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, params map[string]any, userID string) (domain.WorkflowExecution, error) {
	wf, ok := e.definitions.get(workflowID)
	if !ok {
		return domain.WorkflowExecution{}, domain.NewNotFoundError("workflow", workflowID)
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return domain.WorkflowExecution{}, errEngineClosed
	}

	exec := domain.NewExecution(e.newID(), wf.def, params, userID)
	r, err := newRun(e, wf, exec)
	if err != nil {
		return domain.WorkflowExecution{}, err
	}
	if err := e.repo.Save(ctx, exec.Clone()); err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("save execution: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.WorkflowExecution{}, errEngineClosed
	}
	exec.Status = domain.ExecutionRunning
	if err := e.repo.Save(ctx, exec.Clone()); err != nil {
		e.mu.Unlock()
		return domain.WorkflowExecution{}, fmt.Errorf("save execution: %w", err)
	}
	e.runs[exec.ExecutionID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	snapshot := exec.Clone()

	e.metrics.ExecutionStarted()
	e.publish(domain.Event{
		Type:        domain.EventExecutionStarted,
		ExecutionID: snapshot.ExecutionID,
		WorkflowID:  snapshot.WorkflowID,
		UserID:      snapshot.UserID,
		Status:      string(snapshot.Status),
		Timestamp:   time.Now(),
	})
	e.logger.Info("execution started",
		zap.String("execution_id", snapshot.ExecutionID),
		zap.String("workflow_id", workflowID),
		zap.Int("version", snapshot.WorkflowVersion),
		zap.String("user_id", userID))

	go r.drive()

	return snapshot, nil
}

// GetExecution snapshot; nunca compartilha memória com o driver.
// Enquanto o driver está registrado o estado em memória é a fonte.
func (e *Engine) GetExecution(ctx context.Context, executionID string) (domain.WorkflowExecution, error) {
	if r, ok := e.activeRun(executionID); ok {
		return r.snapshot(), nil
	}
	return e.repo.Get(ctx, executionID)
}

// ListExecutions userID vazio lista todas
func (e *Engine) ListExecutions(ctx context.Context, userID string) ([]domain.WorkflowExecution, error) {
	execs, err := e.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range execs {
		if r, ok := e.activeRun(execs[i].ExecutionID); ok {
			execs[i] = r.snapshot()
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartTime.After(execs[j].StartTime) })
	return execs, nil
}

// CancelExecution pedido cooperativo: o driver observa antes de iniciar
// steps, entre tentativas e entre camadas.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	if r, active := e.activeRun(executionID); active {
		if !r.requestCancel() {
			return domain.ErrExecutionFinished
		}
		e.logger.Info("execution cancel requested", zap.String("execution_id", executionID))
		return nil
	}

	exec, err := e.repo.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return domain.ErrExecutionFinished
	}

	// registro órfão (sem driver neste processo)
	exec.Status = domain.ExecutionCancelled
	exec.CancelRequested = true
	exec.EndTime = time.Now()
	exec.Error = "cancelled by request"
	if err := e.repo.Save(ctx, exec); err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// GetProgress resumo por step na ordem da definição
func (e *Engine) GetProgress(ctx context.Context, executionID string) (domain.ExecutionProgress, error) {
	exec, err := e.GetExecution(ctx, executionID)
	if err != nil {
		return domain.ExecutionProgress{}, err
	}

	def := domain.WorkflowDefinition{ID: exec.WorkflowID}
	if wf, ok := e.definitions.getVersion(exec.WorkflowID, exec.WorkflowVersion); ok {
		def = wf.def
	} else {
		ids := make([]string, 0, len(exec.StepResults))
		for id := range exec.StepResults {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			def.Steps = append(def.Steps, domain.WorkflowStep{ID: id})
		}
	}
	return exec.Progress(def), nil
}

// CleanupCompleted remove execuções terminais que terminaram há mais de maxAge
func (e *Engine) CleanupCompleted(ctx context.Context, maxAge time.Duration) (int, error) {
	e.flushUnsaved(ctx)

	ids, err := e.repo.FinishedBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if _, active := e.activeRun(id); active {
			continue
		}
		if err := e.repo.Delete(ctx, id); err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return removed, fmt.Errorf("delete execution %s: %w", id, err)
		}
		removed++
	}

	if removed > 0 {
		e.logger.Info("executions cleaned up", zap.Int("removed", removed), zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

// Shutdown pede cancelamento de todas as execuções ativas e espera os drivers
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	active := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		active = append(active, r)
	}
	e.mu.Unlock()

	for _, r := range active {
		r.requestCancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) activeRun(executionID string) (*run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[executionID]
	return r, ok
}

// flushUnsaved regrava execuções terminais cuja gravação final falhou;
// as que o repositório aceitar deixam de ser servidas da memória
func (e *Engine) flushUnsaved(ctx context.Context) {
	e.mu.Lock()
	pending := make([]*run, 0)
	for _, r := range e.runs {
		if r.detached() {
			pending = append(pending, r)
		}
	}
	e.mu.Unlock()

	for _, r := range pending {
		if err := r.save(ctx); err != nil {
			r.logger.Warn("terminal state still not persisted", zap.Error(err))
			continue
		}
		r.logger.Info("terminal state persisted")
		e.forget(r.exec.ExecutionID)
	}
}

func (e *Engine) forget(executionID string) {
	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()
}

func (e *Engine) publish(event domain.Event) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.EventTimeout)
	defer cancel()
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn("publish event failed",
			zap.String("type", string(event.Type)),
			zap.String("execution_id", event.ExecutionID),
			zap.Error(err))
	}
}
