package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParamsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "params.json")
	if err := os.WriteFile(path, []byte(`{"reads": "sample.fastq", "threads": 8}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	params, resolved, err := LoadParamsFile(path)
	if err != nil {
		t.Fatalf("LoadParamsFile: %v", err)
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if params["threads"] != float64(8) {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestLoadParamsFileRejectsNonObject(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "params.json")
	if err := os.WriteFile(path, []byte(`[1, 2, 3]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadParamsFile(path); err == nil {
		t.Fatalf("expected error for non-object params")
	}
}

func TestLoadParamsFileRejectsURLs(t *testing.T) {
	t.Parallel()

	if _, _, err := LoadParamsFile("https://example.com/params.json"); err == nil {
		t.Fatalf("expected error for URL path")
	}
	if _, _, err := LoadParamsFile("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestParseParamsJSON(t *testing.T) {
	t.Parallel()

	params, err := ParseParamsJSON(" ")
	if err != nil {
		t.Fatalf("blank editor should parse to empty params: %v", err)
	}
	if len(params) != 0 {
		t.Fatalf("expected empty params, got %v", params)
	}

	if _, err := ParseParamsJSON(`"just a string"`); err == nil {
		t.Fatalf("expected error for non-object JSON")
	}
	if _, err := ParseParamsJSON(`{"a":`); err == nil {
		t.Fatalf("expected error for truncated JSON")
	}
}

func TestDefaultsFromSchema(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"reads":   map[string]any{"type": "str", "def": "sample.fastq"},
		"threads": map[string]any{"type": "int", "def": float64(4)},
		"no_def":  map[string]any{"type": "str"},
		"garbage": "not a descriptor",
	}
	defaults := DefaultsFromSchema(schema)
	if len(defaults) != 2 {
		t.Fatalf("unexpected defaults: %v", defaults)
	}
	if defaults["reads"] != "sample.fastq" || defaults["threads"] != float64(4) {
		t.Fatalf("unexpected defaults: %v", defaults)
	}
}

func TestFormatParamsJSONRoundTrips(t *testing.T) {
	t.Parallel()

	text, err := FormatParamsJSON(map[string]any{"threads": 4})
	if err != nil {
		t.Fatalf("FormatParamsJSON: %v", err)
	}
	if !strings.Contains(text, `"threads": 4`) {
		t.Fatalf("unexpected rendering: %q", text)
	}

	text, err = FormatParamsJSON(nil)
	if err != nil || text != "{}" {
		t.Fatalf("nil params should render as {}: %q, %v", text, err)
	}
}
