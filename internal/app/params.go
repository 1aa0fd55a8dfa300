package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadParamsFile reads a local JSON params file and requires a top-level
// object, since the backend merges params by key.
func LoadParamsFile(path string) (map[string]any, string, error) {
	rawPath := strings.TrimSpace(path)
	if rawPath == "" {
		return nil, "", fmt.Errorf("params file path is required")
	}
	if strings.Contains(rawPath, "://") {
		return nil, "", fmt.Errorf("only local filesystem paths are supported")
	}

	resolvedPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, "", fmt.Errorf("resolve params path %q: %w", rawPath, err)
	}

	blob, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, resolvedPath, fmt.Errorf("read params file %q: %w", resolvedPath, err)
	}

	params, err := ParseParamsJSON(string(blob))
	if err != nil {
		return nil, resolvedPath, fmt.Errorf("parse params file %q: %w", resolvedPath, err)
	}
	return params, resolvedPath, nil
}

// ParseParamsJSON parses the editor buffer into a params object.
func ParseParamsJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("parse params JSON: %w", err)
	}
	params, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params JSON must be a top-level object")
	}
	return params, nil
}

// DefaultsFromSchema extracts the backend's declared default for each param.
// The schema maps a param name to a descriptor whose "def" key carries the
// default value; descriptors without one are skipped.
func DefaultsFromSchema(schema map[string]any) map[string]any {
	defaults := map[string]any{}
	for name, raw := range schema {
		desc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if def, ok := desc["def"]; ok {
			defaults[name] = def
		}
	}
	return defaults
}

// FormatParamsJSON renders params as pretty-printed JSON for the editor.
func FormatParamsJSON(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	blob, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render params JSON: %w", err)
	}
	return string(blob), nil
}
