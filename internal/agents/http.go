package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/diogoX451/agentnet/internal/core/domain"
	"github.com/diogoX451/agentnet/internal/core/ports"
)

const maxResponseBytes = 4 << 20

var errTransportClosed = errors.New("agent transport not open")

// HTTPTransportConfig ajustes do pool de conexões
type HTTPTransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
}

// HTTPTransport fala o contrato de fio dos agentes:
//
//	GET  {base_url}/health          -> 2xx
//	POST {base_url}/{action}        -> {"success": bool, "data": {...}, "error": "..."}
type HTTPTransport struct {
	cfg HTTPTransportConfig

	mu     sync.RWMutex
	client *http.Client
}

var _ ports.AgentTransport = (*HTTPTransport)(nil)

func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &HTTPTransport{cfg: cfg}
}

// Open cria o client compartilhado (idempotente)
func (t *HTTPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}

	// Timeouts por chamada vêm do context, não do client
	t.client = &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   t.cfg.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          t.cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   t.cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:       t.cfg.IdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.CloseIdleConnections()
		t.client = nil
	}
	return nil
}

func (t *HTTPTransport) httpClient() (*http.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil {
		return nil, errTransportClosed
	}
	return t.client, nil
}

// Probe GET /health, sucesso = 2xx
func (t *HTTPTransport) Probe(ctx context.Context, agent domain.Agent) error {
	client, err := t.httpClient()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(agent.BaseURL, "health"), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type callPayload struct {
	UserID     string         `json:"user_id"`
	Parameters map[string]any `json:"parameters"`
	RequestID  string         `json:"request_id"`
}

// Call POST /{action} com o envelope JSON
func (t *HTTPTransport) Call(ctx context.Context, agent domain.Agent, req domain.AgentRequest) (domain.AgentResponse, error) {
	client, err := t.httpClient()
	if err != nil {
		return domain.AgentResponse{}, err
	}

	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(callPayload{UserID: req.UserID, Parameters: params, RequestID: req.RequestID})
	if err != nil {
		return domain.AgentResponse{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(agent.BaseURL, req.Action), bytes.NewReader(body))
	if err != nil {
		return domain.AgentResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return domain.AgentResponse{}, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return domain.AgentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return domain.AgentResponse{}, fmt.Errorf("agent returned HTTP %d: %s", httpResp.StatusCode, truncate(string(raw), 256))
	}

	return decodeEnvelope(req, raw)
}

// decodeEnvelope converte {"success", "data", "error"} em AgentResponse.
// data que não é objeto vai para {"value": ...}.
func decodeEnvelope(req domain.AgentRequest, raw []byte) (domain.AgentResponse, error) {
	if !gjson.ValidBytes(raw) {
		return domain.AgentResponse{}, fmt.Errorf("malformed agent response: invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	success := doc.Get("success")
	if !success.Exists() {
		return domain.AgentResponse{}, fmt.Errorf("malformed agent response: missing success field")
	}

	if !success.Bool() {
		reason := doc.Get("error").String()
		if reason == "" {
			reason = "agent reported failure"
		}
		return domain.NewFailureResponse(req, reason), nil
	}

	var data map[string]any
	if d := doc.Get("data"); d.Exists() && d.Type != gjson.Null {
		if d.IsObject() {
			data, _ = d.Value().(map[string]any)
		} else {
			data = map[string]any{"value": d.Value()}
		}
	}
	return domain.NewSuccessResponse(req, data), nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
