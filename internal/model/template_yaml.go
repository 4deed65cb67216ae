package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseTemplateYAML decodes an exam template authored in YAML. The document
// mirrors the JSON definition: every variant is a {kind, data} mapping.
func ParseTemplateYAML(data []byte) (*ExamTemplate, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse template yaml: %w", err)
	}
	normalized, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}

	var tpl ExamTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if tpl.ID == "" {
		return nil, fmt.Errorf("%w: template id is required", ErrTemplateInvalid)
	}
	return &tpl, nil
}

// jsonCompatible rewrites YAML mappings with non-string keys into
// string-keyed maps that encoding/json accepts.
func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			n, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			n, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		for i, item := range t {
			n, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}
