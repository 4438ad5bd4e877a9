package definitions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/agentnet/internal/core/domain"
)

const triageYAML = `
id: triage
name: Patient triage
version: 2
timeout: 2m
retry_count: 1
tags: [health]
steps:
  - id: assess
    agent_id: risk
    action: assess
    timeout: 10s
    parameters:
      patient:
        age: "{{ params.age }}"
        codes: [1, 2]
      1: numeric-key
  - id: notify
    agent_id: comms
    action: send
    retry_count: 0
    retry_delay: 500ms
    condition: steps.assess.output.risk > 0.5
    optional: true
    dependencies: [assess]
`

func TestParseAndFromSpec(t *testing.T) {
	spec, err := Parse([]byte(triageYAML))
	require.NoError(t, err)

	def, err := FromSpec(spec)
	require.NoError(t, err)

	assert.Equal(t, "triage", def.ID)
	assert.Equal(t, 2, def.Version)
	assert.Equal(t, 2*time.Minute, def.Timeout)
	assert.Equal(t, 1, def.RetryCount)
	require.Len(t, def.Steps, 2)

	assess := def.Steps[0]
	assert.Equal(t, "assess", assess.Name)
	assert.Equal(t, 10*time.Second, assess.Timeout)
	assert.Nil(t, assess.RetryCount)
	patient, ok := assess.Parameters["patient"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "{{ params.age }}", patient["age"])
	assert.Equal(t, "numeric-key", assess.Parameters["1"])

	notify := def.Steps[1]
	require.NotNil(t, notify.RetryCount)
	assert.Zero(t, *notify.RetryCount)
	assert.Equal(t, 500*time.Millisecond, notify.RetryDelay)
	assert.True(t, notify.Optional)
	assert.Equal(t, []string{"assess"}, notify.Dependencies)
	assert.Equal(t, "steps.assess.output.risk > 0.5", notify.Condition)

	_, err = domain.ValidateDefinition(def)
	assert.NoError(t, err)
}

func TestToSpecRoundTrip(t *testing.T) {
	spec, err := Parse([]byte(triageYAML))
	require.NoError(t, err)
	def, err := FromSpec(spec)
	require.NoError(t, err)

	back, err := FromSpec(ToSpec(def))
	require.NoError(t, err)
	assert.Equal(t, def, back)
	assert.Equal(t, "2m0s", ToSpec(def).Timeout)
}

const gatedYAML = `
id: gated
steps:
  - id: cooldown
    type: wait
    wait_duration: 250ms
  - id: check
    type: condition
    expression: params.amount > 100
    dependencies: [cooldown]
  - id: ready
    type: wait
    wait_condition: steps.check.output.condition_result == true
    timeout: 5s
    dependencies: [check]
`

func TestFromSpec_StepTypes(t *testing.T) {
	spec, err := Parse([]byte(gatedYAML))
	require.NoError(t, err)
	def, err := FromSpec(spec)
	require.NoError(t, err)
	require.Len(t, def.Steps, 3)

	assert.Equal(t, domain.StepTypeWait, def.Steps[0].Kind())
	assert.Equal(t, 250*time.Millisecond, def.Steps[0].WaitDuration)
	assert.Equal(t, domain.StepTypeCondition, def.Steps[1].Kind())
	assert.Equal(t, "params.amount > 100", def.Steps[1].Expression)
	assert.Equal(t, "steps.check.output.condition_result == true", def.Steps[2].WaitCondition)

	back, err := FromSpec(ToSpec(def))
	require.NoError(t, err)
	assert.Equal(t, def, back)
	assert.Equal(t, "250ms", ToSpec(def).Steps[0].WaitDuration)

	_, err = domain.ValidateDefinition(def)
	require.NoError(t, err)

	spec.Steps[0].WaitDuration = "later"
	_, err = FromSpec(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps.cooldown.wait_duration")
}

func TestFromSpec_InvalidDuration(t *testing.T) {
	spec, err := Parse([]byte("id: x\ntimeout: soon\nsteps: []\n"))
	require.NoError(t, err)

	_, err = FromSpec(spec)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), `invalid duration "soon"`)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-triage.yaml"), []byte(triageYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-echo.yml"), []byte(`
id: echo
steps:
  - id: only
    agent_id: risk
    action: assess
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].ID)
	assert.Equal(t, "triage", defs[1].ID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-bad.yaml"), []byte("id: [unclosed"), 0o644))
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "c-bad.yaml")

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
