package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector("agentnet")

	c.ObserveProbe("triage", true)
	c.ObserveProbe("triage", false)
	c.ObserveAgentRequest("triage", "assess", true, 20*time.Millisecond)
	c.SetAgentStatus("triage", domain.AgentDegraded)
	c.ExecutionStarted()
	c.ExecutionFinished("consult", domain.ExecutionCompleted, time.Second)

	assert.Equal(t, 2, testutil.CollectAndCount(c.probesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("triage", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.agentStatus.WithLabelValues("triage")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.executionsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("consult", "completed")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveProbe("a", true)
		c.ObserveStepAttempt("w", "s", false)
		c.ExecutionFinished("w", domain.ExecutionFailed, time.Second)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("agentnet")
	c.ObserveAgentRequest("triage", "assess", false, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `agentnet_agent_requests_total{action="assess",agent="triage",result="failure"} 1`))
}
