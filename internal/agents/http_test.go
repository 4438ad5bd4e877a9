package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

func newAgentServer(t *testing.T, handler http.HandlerFunc) (*HTTPTransport, domain.Agent) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := NewHTTPTransport(HTTPTransportConfig{})
	require.NoError(t, transport.Open(context.Background()))
	t.Cleanup(func() { _ = transport.Close() })

	return transport, domain.Agent{ID: "triage", BaseURL: srv.URL + "/"}
}

func TestHTTPTransport_Probe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	transport, agent := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, transport.Probe(context.Background(), agent))

	healthy.Store(false)
	err := transport.Probe(context.Background(), agent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPTransport_Call(t *testing.T) {
	transport, agent := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID     string         `json:"user_id"`
			Parameters map[string]any `json:"parameters"`
			RequestID  string         `json:"request_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/assess":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "u-1", body.UserID)
			assert.Equal(t, "r-1", body.RequestID)
			_, _ = w.Write([]byte(`{"success": true, "data": {"risk": 0.82, "flags": ["bp"]}}`))
		case "/score":
			_, _ = w.Write([]byte(`{"success": true, "data": 7}`))
		case "/refuse":
			_, _ = w.Write([]byte(`{"success": false, "error": "insufficient data"}`))
		case "/broken":
			_, _ = w.Write([]byte(`{"data": {}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("kaboom"))
		}
	})
	ctx := context.Background()
	req := domain.AgentRequest{AgentID: "triage", UserID: "u-1", RequestID: "r-1", Parameters: map[string]any{"age": 40}}

	req.Action = "assess"
	resp, err := transport.Call(ctx, agent, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 0.82, resp.Data["risk"])

	req.Action = "score"
	resp, err = transport.Call(ctx, agent, req)
	require.NoError(t, err)
	assert.EqualValues(t, 7, resp.Data["value"])

	req.Action = "refuse"
	resp, err = transport.Call(ctx, agent, req)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient data", resp.Error)
	assert.Nil(t, resp.Data)

	req.Action = "broken"
	_, err = transport.Call(ctx, agent, req)
	assert.ErrorContains(t, err, "missing success field")

	req.Action = "explode"
	_, err = transport.Call(ctx, agent, req)
	assert.ErrorContains(t, err, "agent returned HTTP 500: kaboom")
}

func TestHTTPTransport_Timeout(t *testing.T) {
	transport, agent := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := transport.Call(ctx, agent, domain.AgentRequest{Action: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPTransport_Closed(t *testing.T) {
	transport := NewHTTPTransport(HTTPTransportConfig{})
	err := transport.Probe(context.Background(), domain.Agent{BaseURL: "http://localhost:1"})
	assert.ErrorIs(t, err, errTransportClosed)
}

func TestManager_WithHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"ok": true}}`))
	}))
	defer srv.Close()

	m := NewManager(NewHTTPTransport(HTTPTransportConfig{}), ManagerConfig{ProbeInterval: time.Hour}, nil)
	require.NoError(t, m.RegisterAgent(domain.Agent{ID: "triage", BaseURL: srv.URL, Capabilities: []domain.Capability{{Action: "assess"}}}))
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		a, _ := m.GetAgent("triage")
		return a.Status == domain.AgentOnline
	}, time.Second, 5*time.Millisecond)

	resp := m.SendRequest(context.Background(), domain.AgentRequest{AgentID: "triage", Action: "assess"})
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Data["ok"])
}
