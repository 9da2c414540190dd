package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeRuleDocument decodes a rule document authored as JSON or YAML.
// YAML is normalised through a generic map into JSON so both forms share
// the json tags and the decimal decoding.
func DecodeRuleDocument(data []byte) (*RuleDocument, error) {
	if len(data) > MaxDocumentSize {
		return nil, ErrDocumentTooLarge
	}
	raw, err := normalizeJSON(data)
	if err != nil {
		return nil, err
	}
	var doc RuleDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule document: %w", err)
	}
	return &doc, nil
}

// DecodeEvaluationContext decodes an evaluation context authored as JSON or YAML.
func DecodeEvaluationContext(data []byte) (EvaluationContext, error) {
	raw, err := normalizeJSON(data)
	if err != nil {
		return EvaluationContext{}, err
	}
	var ctx EvaluationContext
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return EvaluationContext{}, fmt.Errorf("failed to decode evaluation context: %w", err)
	}
	return ctx, nil
}

// normalizeJSON returns data unchanged when it is a JSON object and
// converts YAML to JSON otherwise. YAML numbers are copied as written so
// decimal fields never pass through float64.
func normalizeJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return trimmed, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	generic, err := yamlValue(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml to json: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml to json: %w", err)
	}
	return out, nil
}

// yamlValue converts a YAML node into values json.Marshal understands.
// Number scalars that are already valid JSON become json.Number.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}

	switch n.ShortTag() {
	case "!!str":
		return n.Value, nil
	case "!!int", "!!float":
		if json.Valid([]byte(n.Value)) {
			return json.Number(n.Value), nil
		}
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
