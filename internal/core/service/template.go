package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// {{ steps.assess.output.risk }} -> caminho gjson no documento de contexto
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// contextKey escapa ids numéricos, que o sjson trataria como índice de array
func contextKey(id string) string {
	for _, r := range id {
		if r < '0' || r > '9' {
			return id
		}
	}
	return ":" + id
}

func newContextDoc(executionID, userID string, params map[string]any) ([]byte, error) {
	doc := []byte(`{"steps":{}}`)
	var err error
	if doc, err = sjson.SetBytes(doc, "execution_id", executionID); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "user_id", userID); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return sjson.SetBytes(doc, "params", params)
}

func setStepContext(doc []byte, stepID, status string, output map[string]any) ([]byte, error) {
	base := "steps." + contextKey(stepID)
	doc, err := sjson.SetBytes(doc, base+".status", status)
	if err != nil {
		return nil, err
	}
	if output == nil {
		return doc, nil
	}
	return sjson.SetBytes(doc, base+".output", output)
}

// renderParameters resolve placeholders nos valores string (recursivo).
// Um valor que é só um placeholder mantém o tipo JSON referenciado.
func renderParameters(params map[string]any, doc []byte) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		rendered, err := renderValue(v, doc)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}

func renderValue(v any, doc []byte) (any, error) {
	switch t := v.(type) {
	case string:
		return renderString(t, doc)
	case map[string]any:
		return renderParameters(t, doc)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rendered, err := renderValue(item, doc)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

func renderString(s string, doc []byte) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		res, err := lookup(doc, s[matches[0][2]:matches[0][3]])
		if err != nil {
			return nil, err
		}
		return res.Value(), nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		res, err := lookup(doc, s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		b.WriteString(res.String())
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func lookup(doc []byte, path string) (gjson.Result, error) {
	res := gjson.GetBytes(doc, strings.TrimSpace(path))
	if !res.Exists() {
		return res, fmt.Errorf("unresolved reference {{%s}}", path)
	}
	return res, nil
}
