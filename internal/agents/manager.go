package agents

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/metrics"
	"github.com/diogoX451/agentnet/internal/tracing"
)

// ManagerConfig intervalos de sonda, limiar de falhas e política de dispatch
type ManagerConfig struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	RequestTimeout   time.Duration

	// RateLimit requisições/s por agente; 0 desliga
	RateLimit float64
	RateBurst int

	Breaker BreakerConfig
}

// BreakerConfig circuit breaker por agente (desligado por padrão)
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

func (c *ManagerConfig) applyDefaults() {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = domain.DefaultFailureThreshold
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 30 * time.Second
	}
}

type Option func(*Manager)

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager é o registro de saúde dos agentes: sonda periódica por agente e
// dispatch resiliente de requisições.
type Manager struct {
	transport ports.AgentTransport
	cfg       ManagerConfig
	logger    *zap.Logger
	events    ports.EventPublisher
	metrics   *metrics.Collector
	catalog   *ActionCatalog

	mu     sync.RWMutex
	agents map[string]*agentEntry

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ ports.AgentGateway = (*Manager)(nil)

// agentEntry estado mutável de um agente; leitores recebem cópias
type agentEntry struct {
	mu      sync.RWMutex
	agent   domain.Agent
	stats   domain.AgentMetrics
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[domain.AgentResponse]
}

func (e *agentEntry) snapshot() domain.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agent.Clone()
}

func NewManager(transport ports.AgentTransport, cfg ManagerConfig, logger *zap.Logger, opts ...Option) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "agent_manager")),
		catalog:   NewActionCatalog(),
		agents:    make(map[string]*agentEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterAgent adiciona um agente ao catálogo com status UNKNOWN.
// Se o manager já foi iniciado, a sonda do agente começa imediatamente.
func (m *Manager) RegisterAgent(agent domain.Agent) error {
	if agent.ID == "" {
		return domain.NewValidationError("id", "agent id is required")
	}
	u, err := url.Parse(agent.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return domain.NewValidationError("base_url", "invalid base url %q for agent %s", agent.BaseURL, agent.ID)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if _, exists := m.agents[agent.ID]; exists {
		m.mu.Unlock()
		return domain.NewValidationError("id", "agent already registered: %s", agent.ID)
	}
	if err := m.catalog.Register(agent); err != nil {
		m.mu.Unlock()
		return err
	}

	entry := &agentEntry{agent: agent.Clone()}
	entry.agent.Status = domain.AgentUnknown
	entry.agent.ConsecutiveFailures = 0
	entry.stats.AgentID = agent.ID
	if m.cfg.RateLimit > 0 {
		entry.limiter = rate.NewLimiter(rate.Limit(m.cfg.RateLimit), m.cfg.RateBurst)
	}
	if m.cfg.Breaker.Enabled {
		entry.breaker = m.newBreaker(agent.ID)
	}
	m.agents[agent.ID] = entry
	m.mu.Unlock()

	m.metrics.SetAgentStatus(agent.ID, domain.AgentUnknown)
	m.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("base_url", agent.BaseURL),
		zap.Int("capabilities", len(agent.Capabilities)))

	if m.started && !m.stopped {
		m.spawnProbe(agent.ID)
	}
	return nil
}

func (m *Manager) newBreaker(agentID string) *gobreaker.CircuitBreaker[domain.AgentResponse] {
	maxFailures := m.cfg.Breaker.MaxFailures
	return gobreaker.NewCircuitBreaker[domain.AgentResponse](gobreaker.Settings{
		Name:        "agent:" + agentID,
		MaxRequests: 1,
		Timeout:     m.cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Start abre o transporte e inicia uma sonda por agente. Chamadas repetidas são no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stopped {
		return domain.ErrManagerStopped
	}
	if m.started {
		return nil
	}
	if err := m.transport.Open(ctx); err != nil {
		return fmt.Errorf("open agent transport: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.started = true

	for _, id := range m.agentIDs() {
		m.spawnProbe(id)
	}
	m.logger.Info("agent manager started",
		zap.Int("agents", len(m.agentIDs())),
		zap.Duration("probe_interval", m.cfg.ProbeInterval))
	return nil
}

// Stop cancela as sondas, espera terminarem e fecha o transporte
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	if !m.started {
		return
	}

	m.cancel()
	m.wg.Wait()
	if err := m.transport.Close(); err != nil {
		m.logger.Warn("close agent transport", zap.Error(err))
	}
	m.logger.Info("agent manager stopped")
}

// spawnProbe chamado com lifecycle travado
func (m *Manager) spawnProbe(agentID string) {
	m.wg.Add(1)
	go m.probeLoop(m.ctx, agentID)
}

func (m *Manager) probeLoop(ctx context.Context, agentID string) {
	defer m.wg.Done()

	m.PerformHealthCheck(ctx, agentID)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PerformHealthCheck(ctx, agentID)
		}
	}
}

// PerformHealthCheck sonda o agente e aplica a transição de estado.
// Nunca retorna erro: falhas viram resultado OFFLINE com Error preenchido.
func (m *Manager) PerformHealthCheck(ctx context.Context, agentID string) domain.HealthCheckResult {
	started := time.Now()
	entry, ok := m.entry(agentID)
	if !ok {
		return domain.ProbeFailure(agentID, started, fmt.Sprintf("agent not found: %s", agentID))
	}
	agent := entry.snapshot()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.transport.Probe(probeCtx, agent)
	cancel()

	var res domain.HealthCheckResult
	if err != nil {
		res = domain.ProbeFailure(agentID, started, describeError(err, m.cfg.ProbeTimeout))
	} else {
		res = domain.ProbeSuccess(agentID, started)
	}

	// Shutdown em andamento: não conta como falha do agente
	if ctx.Err() != nil {
		return res
	}

	entry.mu.Lock()
	prev := entry.agent.ApplyProbe(res, m.cfg.FailureThreshold)
	current := entry.agent.Status
	failures := entry.agent.ConsecutiveFailures
	entry.mu.Unlock()

	m.metrics.ObserveProbe(agentID, err == nil)
	m.metrics.SetAgentStatus(agentID, current)

	if prev != current {
		m.logger.Info("agent status changed",
			zap.String("agent_id", agentID),
			zap.String("from", string(prev)),
			zap.String("to", string(current)),
			zap.Int("consecutive_failures", failures),
			zap.String("error", res.Error))
		m.publish(ctx, domain.Event{
			Type:      domain.EventAgentStatusChanged,
			AgentID:   agentID,
			Status:    string(current),
			Previous:  string(prev),
			Error:     res.Error,
			Timestamp: res.Timestamp,
		})
	} else if err != nil {
		m.logger.Debug("health check failed",
			zap.String("agent_id", agentID),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
	}

	return res
}

// SendRequest envia a ação ao agente. Nunca retorna erro: toda falha vira
// AgentResponse{Success:false}. Agente OFFLINE falha sem tocar a rede.
func (m *Manager) SendRequest(ctx context.Context, req domain.AgentRequest) domain.AgentResponse {
	started := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx, span := tracing.StartSpan(ctx, "agent.send_request",
		attribute.String("agent.id", req.AgentID),
		attribute.String("agent.action", req.Action),
		attribute.String("request.id", req.RequestID))

	resp := m.dispatch(ctx, req)
	resp.ExecutionTime = time.Since(started)

	if entry, ok := m.entry(req.AgentID); ok {
		entry.mu.Lock()
		entry.stats.Record(resp)
		entry.mu.Unlock()
	}
	m.metrics.ObserveAgentRequest(req.AgentID, req.Action, resp.Success, resp.ExecutionTime)

	if resp.Success {
		tracing.End(span, nil)
	} else {
		tracing.Fail(span, resp.Error)
		m.logger.Debug("agent request failed",
			zap.String("agent_id", req.AgentID),
			zap.String("action", req.Action),
			zap.String("request_id", req.RequestID),
			zap.String("error", resp.Error))
	}
	return resp
}

func (m *Manager) dispatch(ctx context.Context, req domain.AgentRequest) domain.AgentResponse {
	entry, ok := m.entry(req.AgentID)
	if !ok {
		return domain.NewFailureResponse(req, fmt.Sprintf("agent not found: %s", req.AgentID))
	}
	agent := entry.snapshot()
	if agent.Status == domain.AgentOffline {
		return domain.NewFailureResponse(req, domain.ErrAgentUnavailable.Error())
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if entry.limiter != nil {
		if err := entry.limiter.Wait(callCtx); err != nil {
			return domain.NewFailureResponse(req, fmt.Sprintf("rate limited: %v", err))
		}
	}

	call := func() (domain.AgentResponse, error) {
		return m.transport.Call(callCtx, agent, req)
	}

	var (
		resp domain.AgentResponse
		err  error
	)
	if entry.breaker != nil {
		resp, err = entry.breaker.Execute(call)
	} else {
		resp, err = call()
	}
	if err != nil {
		return domain.NewFailureResponse(req, describeError(err, timeout))
	}

	// o transporte não conhece ids; normaliza a resposta
	if resp.Success {
		return domain.NewSuccessResponse(req, resp.Data)
	}
	return domain.NewFailureResponse(req, resp.Error)
}

func describeError(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("request timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit open"
	default:
		return err.Error()
	}
}

func (m *Manager) publish(ctx context.Context, event domain.Event) {
	if m.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := m.events.Publish(pubCtx, event); err != nil {
		m.logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// ResolveAction valida agente e ação contra o catálogo
func (m *Manager) ResolveAction(agentID, action string) error {
	return m.catalog.Resolve(agentID, action)
}

// ValidateParameters aplica o schema da ação
func (m *Manager) ValidateParameters(agentID, action string, params map[string]any) error {
	return m.catalog.Validate(agentID, action, params)
}

func (m *Manager) GetAgent(agentID string) (domain.Agent, error) {
	entry, ok := m.entry(agentID)
	if !ok {
		return domain.Agent{}, domain.NewNotFoundError("agent", agentID)
	}
	return entry.snapshot(), nil
}

// ListAgents snapshot de todos os agentes, ordenado por id
func (m *Manager) ListAgents() []domain.Agent {
	ids := m.agentIDs()
	out := make([]domain.Agent, 0, len(ids))
	for _, id := range ids {
		if entry, ok := m.entry(id); ok {
			out = append(out, entry.snapshot())
		}
	}
	return out
}

func (m *Manager) AgentMetrics(agentID string) (domain.AgentMetrics, error) {
	entry, ok := m.entry(agentID)
	if !ok {
		return domain.AgentMetrics{}, domain.NewNotFoundError("agent", agentID)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.stats, nil
}

func (m *Manager) NetworkStatus() domain.NetworkStatus {
	return domain.SummarizeNetwork(m.ListAgents())
}

func (m *Manager) entry(agentID string) (*agentEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.agents[agentID]
	return e, ok
}

func (m *Manager) agentIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
