package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/tracing"
)

const (
	saveTimeout      = 5 * time.Second
	reasonNotStarted = "not started: workflow failed"
	reasonCancelled  = "execution cancelled"
)

// run é o driver de uma execução. Só ele escreve em exec; leitores recebem Clone.
type run struct {
	engine *Engine
	wf     *registeredWorkflow
	logger *zap.Logger

	mu   sync.Mutex
	exec *domain.WorkflowExecution
	doc  []byte // documento de contexto para templates

	cancelOnce sync.Once
	cancelled  chan struct{}

	unsaved bool // última gravação falhou
	done    bool // driver retornou
}

func newRun(e *Engine, wf *registeredWorkflow, exec *domain.WorkflowExecution) (*run, error) {
	doc, err := newContextDoc(exec.ExecutionID, exec.UserID, exec.Parameters)
	if err != nil {
		return nil, domain.NewValidationError("parameters", "%v", err)
	}
	return &run{
		engine:    e,
		wf:        wf,
		exec:      exec,
		doc:       doc,
		cancelled: make(chan struct{}),
		logger: e.logger.With(
			zap.String("execution_id", exec.ExecutionID),
			zap.String("workflow_id", exec.WorkflowID)),
	}, nil
}

func (r *run) cancelRequested() bool {
	select {
	case <-r.cancelled:
		return true
	default:
		return false
	}
}

// requestCancel false quando a execução já terminou
func (r *run) requestCancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec.Status.Terminal() {
		return false
	}
	r.cancelOnce.Do(func() { close(r.cancelled) })
	if !r.exec.CancelRequested {
		r.exec.CancelRequested = true
		r.saveLocked()
	}
	return true
}

func (r *run) drive() {
	e := r.engine
	defer e.wg.Done()

	ctx := context.Background()
	timeout := r.wf.def.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "workflow.execute",
		attribute.String("execution_id", r.exec.ExecutionID),
		attribute.String("workflow_id", r.exec.WorkflowID),
		attribute.Int("workflow_version", r.exec.WorkflowVersion))

	var pc panics.Catcher
	pc.Try(func() { r.runLayers(ctx) })
	if rec := pc.Recovered(); rec != nil {
		r.logger.Error("execution driver panicked", zap.Any("panic", rec.Value), zap.String("stack", string(rec.Stack)))
		r.finish(domain.ExecutionFailed, fmt.Sprintf("internal error: %v", rec.Value))
	}

	final := r.snapshot()
	if final.Status == domain.ExecutionCompleted {
		tracing.End(span, nil)
	} else {
		tracing.Fail(span, final.Error)
	}

	// sem o estado terminal no repositório a execução continua servida da memória
	if err := r.persistFinal(); err != nil {
		r.logger.Error("terminal state not persisted, serving it from memory", zap.Error(err))
		r.mu.Lock()
		r.done = true
		r.mu.Unlock()
		return
	}
	e.forget(r.exec.ExecutionID)
}

// persistFinal regrava o snapshot enquanto a última gravação tiver falhado,
// até SaveAttempts vezes com espera dobrando
func (r *run) persistFinal() error {
	cfg := r.engine.cfg
	delay := cfg.SaveRetryDelay
	for attempt := 1; ; attempt++ {
		r.mu.Lock()
		if !r.unsaved {
			r.mu.Unlock()
			return nil
		}
		err := r.saveLocked()
		r.mu.Unlock()
		if err == nil {
			return nil
		}
		if attempt >= cfg.SaveAttempts {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func (r *run) detached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done && r.unsaved
}

func (r *run) save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.engine.repo.Save(ctx, r.exec.Clone())
	r.unsaved = err != nil
	return err
}

func (r *run) runLayers(ctx context.Context) {
	def := r.wf.def
	for _, layer := range r.wf.layers {
		if r.cancelRequested() {
			r.abortPending(reasonCancelled)
			r.finish(domain.ExecutionCancelled, "cancelled by request")
			return
		}
		if ctx.Err() != nil {
			r.abortPending(reasonNotStarted)
			r.finish(domain.ExecutionFailed, fmt.Sprintf("workflow timed out after %s", def.Timeout))
			return
		}

		var wg conc.WaitGroup
		for _, id := range layer {
			step, _ := def.Step(id)
			wg.Go(func() { r.runStep(ctx, step) })
		}
		if rec := wg.WaitAndRecover(); rec != nil {
			r.logger.Error("step panicked", zap.Any("panic", rec.Value), zap.String("stack", string(rec.Stack)))
			r.failRunning(fmt.Sprintf("internal error: %v", rec.Value))
			r.abortPending(reasonNotStarted)
			r.finish(domain.ExecutionFailed, fmt.Sprintf("internal error: %v", rec.Value))
			return
		}

		if r.cancelRequested() {
			r.abortPending(reasonCancelled)
			r.finish(domain.ExecutionCancelled, "cancelled by request")
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.abortPending(reasonNotStarted)
			r.finish(domain.ExecutionFailed, fmt.Sprintf("workflow timed out after %s", def.Timeout))
			return
		}

		// primeiro step obrigatório que falhou, na ordem da camada
		for _, id := range layer {
			step, _ := def.Step(id)
			res := r.stepResult(id)
			if res.Status == domain.StepFailed && !step.Optional {
				r.abortPending(reasonNotStarted)
				r.finish(domain.ExecutionFailed, fmt.Sprintf("step %s failed: %s", id, res.LastError))
				return
			}
		}
	}
	r.finish(domain.ExecutionCompleted, "")
}

func (r *run) runStep(ctx context.Context, step domain.WorkflowStep) {
	e := r.engine
	logger := r.logger.With(zap.String("step_id", step.ID), zap.String("agent_id", step.AgentID))

	// cancelado antes de começar: fica PENDING
	if r.cancelRequested() {
		return
	}

	if step.Condition != "" {
		ok, err := e.conditions.Evaluate(step.Condition, r.conditionEnv())
		if err != nil {
			logger.Warn("condition evaluation failed", zap.String("condition", step.Condition), zap.Error(err))
			r.failStep(step, 0, "condition: "+err.Error())
			return
		}
		if !ok {
			logger.Debug("step skipped by condition", zap.String("condition", step.Condition))
			r.skipStep(step)
			return
		}
	}

	switch step.Kind() {
	case domain.StepTypeWait:
		r.runWait(ctx, step)
		return
	case domain.StepTypeCondition:
		r.runCondition(step)
		return
	}

	params, err := r.stepParameters(step)
	if err != nil {
		r.failStep(step, 0, err.Error())
		return
	}
	if err := e.agents.ValidateParameters(step.AgentID, step.Action, params); err != nil {
		r.failStep(step, 0, err.Error())
		return
	}

	r.startStep(step)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultStepTimeout
	}
	delay := step.RetryDelay
	if delay <= 0 {
		delay = e.cfg.RetryDelay
	}
	attempts := step.Retries(r.wf.def) + 1

	var lastErr string
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if !r.sleep(ctx, delay) || r.cancelRequested() {
				r.failStep(step, attempt-1, r.interruptReason())
				return
			}
		}

		resp := r.attempt(ctx, step, params, attempt, timeout)
		e.metrics.ObserveStepAttempt(r.exec.WorkflowID, step.ID, resp.Success)
		if resp.Success {
			r.completeStep(step, attempt, resp.Data)
			return
		}

		lastErr = resp.Error
		logger.Warn("step attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.String("error", lastErr))
		r.recordAttempt(step.ID, attempt, lastErr)
	}

	r.failStep(step, attempts, lastErr)
}

func (r *run) attempt(ctx context.Context, step domain.WorkflowStep, params map[string]any, attempt int, timeout time.Duration) domain.AgentResponse {
	ctx, span := tracing.StartSpan(ctx, "workflow.step",
		attribute.String("step_id", step.ID),
		attribute.String("agent_id", step.AgentID),
		attribute.String("action", step.Action),
		attribute.Int("attempt", attempt))

	resp := r.engine.agents.SendRequest(ctx, domain.AgentRequest{
		AgentID:    step.AgentID,
		Action:     step.Action,
		Parameters: params,
		UserID:     r.exec.UserID,
		RequestID:  fmt.Sprintf("%s:%s:%d", r.exec.ExecutionID, step.ID, attempt),
		Timeout:    timeout,
	})
	if resp.Success {
		tracing.End(span, nil)
	} else {
		tracing.Fail(span, resp.Error)
	}
	return resp
}

// runCondition avalia a expressão e publica o resultado como output
func (r *run) runCondition(step domain.WorkflowStep) {
	r.startStep(step)
	result, err := r.engine.conditions.Evaluate(step.Expression, r.conditionEnv())
	if err != nil {
		r.failStep(step, 1, "expression: "+err.Error())
		return
	}
	r.completeStep(step, 1, map[string]any{"condition_result": result})
}

// runWait espera wait_duration, ou consulta wait_condition até o timeout do step
func (r *run) runWait(ctx context.Context, step domain.WorkflowStep) {
	r.startStep(step)
	done := map[string]any{"wait_completed": true}

	if step.WaitDuration > 0 {
		if !r.sleep(ctx, step.WaitDuration) {
			r.failStep(step, 1, r.interruptReason())
			return
		}
		r.completeStep(step, 1, done)
		return
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.engine.cfg.DefaultStepTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := r.engine.conditions.Evaluate(step.WaitCondition, r.conditionEnv())
		if err != nil {
			r.failStep(step, 1, "wait condition: "+err.Error())
			return
		}
		if ok {
			r.completeStep(step, 1, done)
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.failStep(step, 1, fmt.Sprintf("wait condition not met after %s", timeout))
			return
		}
		if !r.sleep(ctx, min(r.engine.cfg.WaitPollInterval, remaining)) {
			r.failStep(step, 1, r.interruptReason())
			return
		}
	}
}

func (r *run) interruptReason() string {
	if r.cancelRequested() {
		return reasonCancelled
	}
	return "workflow deadline exceeded"
}

// sleep false quando cancelado ou o prazo do workflow expirou
func (r *run) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.cancelled:
		return false
	case <-ctx.Done():
		return false
	}
}

// stepParameters parâmetros da execução com os do step (renderizados) por cima
func (r *run) stepParameters(step domain.WorkflowStep) (map[string]any, error) {
	r.mu.Lock()
	doc := r.doc
	base := domain.CloneMap(r.exec.Parameters)
	r.mu.Unlock()

	rendered, err := renderParameters(step.Parameters, doc)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = make(map[string]any, len(rendered))
	}
	for k, v := range rendered {
		base[k] = v
	}
	return base, nil
}

func (r *run) conditionEnv() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := make(map[string]any, len(r.exec.StepResults))
	for id, res := range r.exec.StepResults {
		if !res.Status.Terminal() {
			continue
		}
		output := domain.CloneMap(res.Output)
		if output == nil {
			output = map[string]any{}
		}
		steps[id] = map[string]any{"status": string(res.Status), "output": output}
	}
	params := domain.CloneMap(r.exec.Parameters)
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{
		"params":       params,
		"steps":        steps,
		"user_id":      r.exec.UserID,
		"execution_id": r.exec.ExecutionID,
	}
}

func (r *run) startStep(step domain.WorkflowStep) {
	r.mu.Lock()
	res := r.exec.StepResults[step.ID]
	res.Status = domain.StepRunning
	res.StartedAt = time.Now()
	r.setContextLocked(step.ID, res)
	r.saveLocked()
	r.mu.Unlock()

	r.publishStep(domain.EventStepStarted, step, res.Status, 0, "")
}

func (r *run) recordAttempt(stepID string, attempt int, reason string) {
	r.mu.Lock()
	res := r.exec.StepResults[stepID]
	res.Attempts = attempt
	res.LastError = reason
	r.saveLocked()
	r.mu.Unlock()
}

func (r *run) completeStep(step domain.WorkflowStep, attempts int, output map[string]any) {
	r.mu.Lock()
	res := r.exec.StepResults[step.ID]
	res.Status = domain.StepCompleted
	res.Attempts = attempts
	res.LastError = ""
	res.Output = domain.CloneMap(output)
	res.FinishedAt = time.Now()
	r.setContextLocked(step.ID, res)
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Info("step completed", zap.String("step_id", step.ID), zap.Int("attempts", attempts))
	r.publishStep(domain.EventStepCompleted, step, domain.StepCompleted, attempts, "")
}

func (r *run) failStep(step domain.WorkflowStep, attempts int, reason string) {
	r.mu.Lock()
	res := r.exec.StepResults[step.ID]
	res.Status = domain.StepFailed
	res.Attempts = attempts
	res.LastError = reason
	res.FinishedAt = time.Now()
	r.setContextLocked(step.ID, res)
	r.saveLocked()
	r.mu.Unlock()

	r.logger.Warn("step failed",
		zap.String("step_id", step.ID),
		zap.Int("attempts", attempts),
		zap.Bool("optional", step.Optional),
		zap.String("error", reason))
	r.publishStep(domain.EventStepFailed, step, domain.StepFailed, attempts, reason)
}

func (r *run) skipStep(step domain.WorkflowStep) {
	r.mu.Lock()
	res := r.exec.StepResults[step.ID]
	res.Status = domain.StepSkipped
	res.FinishedAt = time.Now()
	r.setContextLocked(step.ID, res)
	r.saveLocked()
	r.mu.Unlock()

	r.publishStep(domain.EventStepSkipped, step, domain.StepSkipped, 0, "")
}

// abortPending marca o motivo nos steps que nunca começaram (continuam PENDING)
func (r *run) abortPending(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.exec.StepResults {
		if res.Status == domain.StepPending {
			res.LastError = reason
		}
	}
}

// failRunning fecha steps que ficaram RUNNING depois de um panic
func (r *run) failRunning(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.exec.StepResults {
		if res.Status == domain.StepRunning {
			res.Status = domain.StepFailed
			res.LastError = reason
			res.FinishedAt = time.Now()
		}
	}
}

// finish idempotente: o primeiro status terminal vence
func (r *run) finish(status domain.ExecutionStatus, reason string) {
	r.mu.Lock()
	if r.exec.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.exec.Status = status
	r.exec.Error = reason
	r.exec.EndTime = time.Now()
	r.saveLocked()
	snap := r.exec.Clone()
	r.mu.Unlock()

	e := r.engine
	elapsed := snap.EndTime.Sub(snap.StartTime)
	e.metrics.ExecutionFinished(snap.WorkflowID, status, elapsed)

	eventType := domain.EventExecutionCompleted
	switch status {
	case domain.ExecutionFailed:
		eventType = domain.EventExecutionFailed
	case domain.ExecutionCancelled:
		eventType = domain.EventExecutionCancelled
	}
	e.publish(domain.Event{
		Type:        eventType,
		ExecutionID: snap.ExecutionID,
		WorkflowID:  snap.WorkflowID,
		UserID:      snap.UserID,
		Status:      string(status),
		Error:       reason,
		Timestamp:   snap.EndTime,
	})

	fields := []zap.Field{zap.String("status", string(status)), zap.Duration("duration", elapsed)}
	if reason != "" {
		fields = append(fields, zap.String("error", reason))
	}
	r.logger.Info("execution finished", fields...)
}

func (r *run) snapshot() domain.WorkflowExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.Clone()
}

func (r *run) stepResult(id string) domain.StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.exec.StepResults[id]
}

func (r *run) setContextLocked(stepID string, res *domain.StepResult) {
	doc, err := setStepContext(r.doc, stepID, string(res.Status), res.Output)
	if err != nil {
		r.logger.Warn("update template context failed", zap.String("step_id", stepID), zap.Error(err))
		return
	}
	r.doc = doc
}

// saveLocked persiste um snapshot; chamado com r.mu travado para manter a ordem das gravações
func (r *run) saveLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err := r.engine.repo.Save(ctx, r.exec.Clone())
	r.unsaved = err != nil
	if err != nil {
		r.logger.Error("save execution failed", zap.Error(err), zap.String("status", string(r.exec.Status)))
	}
	return err
}

func (r *run) publishStep(t domain.EventType, step domain.WorkflowStep, status domain.StepStatus, attempts int, reason string) {
	r.engine.publish(domain.Event{
		Type:        t,
		ExecutionID: r.exec.ExecutionID,
		WorkflowID:  r.exec.WorkflowID,
		StepID:      step.ID,
		AgentID:     step.AgentID,
		UserID:      r.exec.UserID,
		Status:      string(status),
		Attempts:    attempts,
		Error:       reason,
		Timestamp:   time.Now(),
	})
}
