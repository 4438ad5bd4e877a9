package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func contextFixture(t *testing.T) []byte {
	t.Helper()
	doc, err := newContextDoc("e-1", "u-1", map[string]any{"name": "Ana", "limits": map[string]any{"max": 3}})
	require.NoError(t, err)
	doc, err = setStepContext(doc, "assess", "completed", map[string]any{"risk": 0.82, "flags": []any{"bp", "hr"}})
	require.NoError(t, err)
	doc, err = setStepContext(doc, "42", "completed", map[string]any{"ok": true})
	require.NoError(t, err)
	return doc
}

func TestRenderParameters(t *testing.T) {
	doc := contextFixture(t)

	got, err := renderParameters(map[string]any{
		"risk":    "{{ steps.assess.output.risk }}",
		"flags":   "{{steps.assess.output.flags}}",
		"first":   "{{ steps.assess.output.flags.0 }}",
		"greet":   "hi {{ params.name }} ({{ user_id }})",
		"max":     "{{ params.limits.max }}",
		"numeric": "{{ steps.42.output.ok }}",
		"nested":  map[string]any{"list": []any{"{{ execution_id }}", 7}},
		"plain":   "no placeholders",
		"number":  12,
	}, doc)
	require.NoError(t, err)

	assert.Equal(t, 0.82, got["risk"])
	assert.Equal(t, []any{"bp", "hr"}, got["flags"])
	assert.Equal(t, "bp", got["first"])
	assert.Equal(t, "hi Ana (u-1)", got["greet"])
	assert.Equal(t, float64(3), got["max"])
	assert.Equal(t, true, got["numeric"])
	assert.Equal(t, map[string]any{"list": []any{"e-1", 7}}, got["nested"])
	assert.Equal(t, "no placeholders", got["plain"])
	assert.Equal(t, 12, got["number"])
}

func TestRenderParameters_Unresolved(t *testing.T) {
	doc := contextFixture(t)
	_, err := renderParameters(map[string]any{"x": "{{ steps.notify.output.id }}"}, doc)
	assert.EqualError(t, err, "parameter x: unresolved reference {{steps.notify.output.id}}")
}

func TestSetStepContext_StatusWithoutOutput(t *testing.T) {
	doc, err := newContextDoc("e-1", "", nil)
	require.NoError(t, err)
	doc, err = setStepContext(doc, "assess", "running", nil)
	require.NoError(t, err)

	assert.Equal(t, "running", gjson.GetBytes(doc, "steps.assess.status").String())
	assert.False(t, gjson.GetBytes(doc, "steps.assess.output").Exists())
	assert.True(t, gjson.GetBytes(doc, "params").IsObject())
}

func TestContextKey(t *testing.T) {
	assert.Equal(t, "assess", contextKey("assess"))
	assert.Equal(t, ":42", contextKey("42"))
	assert.Equal(t, "step-2", contextKey("step-2"))
}
