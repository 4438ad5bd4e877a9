package domain

import "time"

// DefaultFailureThreshold falhas consecutivas até OFFLINE
const DefaultFailureThreshold = 3

// ApplyProbe aplica o resultado de uma sonda à máquina de estados do agente.
//
//	unknown  -> online    (sucesso)
//	online   -> degraded  (1ª falha)
//	degraded -> offline   (falhas >= threshold)
//	*        -> online    (qualquer sucesso zera o contador)
//
// Retorna o status anterior.
func (a *Agent) ApplyProbe(res HealthCheckResult, threshold int) AgentStatus {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	prev := a.Status

	a.LastProbeTime = res.Timestamp
	a.LastLatency = res.Latency

	if res.Error == "" {
		a.ConsecutiveFailures = 0
		a.LastError = ""
		a.Status = AgentOnline
		return prev
	}

	a.ConsecutiveFailures++
	a.LastError = res.Error
	if a.ConsecutiveFailures >= threshold {
		a.Status = AgentOffline
	} else {
		a.Status = AgentDegraded
	}
	return prev
}

// ProbeFailure monta o resultado de uma sonda que falhou
func ProbeFailure(agentID string, started time.Time, reason string) HealthCheckResult {
	return HealthCheckResult{
		AgentID:   agentID,
		Status:    AgentOffline,
		Timestamp: time.Now(),
		Latency:   time.Since(started),
		Error:     reason,
	}
}

// ProbeSuccess monta o resultado de uma sonda bem-sucedida
func ProbeSuccess(agentID string, started time.Time) HealthCheckResult {
	return HealthCheckResult{
		AgentID:   agentID,
		Status:    AgentOnline,
		Timestamp: time.Now(),
		Latency:   time.Since(started),
	}
}
