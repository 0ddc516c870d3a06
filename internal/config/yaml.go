package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// IsYAML reports whether path names a YAML document.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// coerceToJSONBytes turns YAML into JSON so both formats go through the
// same strict decoder. JSON input is returned unchanged.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if !IsYAML(path) {
		return data, "json", nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	j, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml config: %w", err)
	}
	return j, "yaml", nil
}

// Encode renders cfg as YAML or indented JSON depending on path.
func Encode(path string, cfg *Config) ([]byte, error) {
	j, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if !IsYAML(path) {
		return append(j, '\n'), nil
	}
	var doc any
	if err := json.Unmarshal(j, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// stringKeys rewrites map[any]any nodes so the tree is JSON-encodable.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	}
	return in
}
