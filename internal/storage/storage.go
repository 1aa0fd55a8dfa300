// Package storage persists finished runs: the parameters used, the full
// transcript, and the decoded result artifact the backend handed back.
package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store writes run records under a runs directory, one directory per run.
type Store struct {
	runsDir string
}

// RunRecord summarizes one saved run.
type RunRecord struct {
	RunID         string `json:"run_id"`
	SavedAt       string `json:"saved_at"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	ResultFile    string `json:"result_file"`
	Directory     string `json:"directory"`
}

// SaveRequest carries everything worth keeping from a finished run.
type SaveRequest struct {
	RunID          string
	Params         map[string]any
	Transcript     string
	Status         string
	StatusMessage  string
	ResultFileName string
	// ResultFileData is the backend's encoded payload, either a
	// data:...;base64, URI or bare base64.
	ResultFileData string
}

func NewStore(runsDir string) (*Store, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runs dir: %w", err)
	}
	return &Store{runsDir: runsDir}, nil
}

// RunsDir returns the directory holding saved runs.
func (s *Store) RunsDir() string {
	return s.runsDir
}

// NewRunID returns a fresh identifier for a locally initiated run.
func NewRunID() string {
	return uuid.NewString()
}

// SaveRun writes one run directory: summary.json, params.json,
// transcript.log, and the decoded result artifact when present.
func (s *Store) SaveRun(req SaveRequest) (RunRecord, error) {
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = NewRunID()
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	now := time.Now().UTC()
	stamp := now.Format("20060102-150405")
	shortID := runID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	dirPath := filepath.Join(s.runsDir, fmt.Sprintf("%s-%s", stamp, shortID))
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return RunRecord{}, fmt.Errorf("create run dir: %w", err)
	}

	record := RunRecord{
		RunID:         runID,
		SavedAt:       now.Format(time.RFC3339),
		Status:        req.Status,
		StatusMessage: req.StatusMessage,
		Directory:     dirPath,
	}

	if req.ResultFileData != "" {
		name := safeFileName(req.ResultFileName)
		blob, err := DecodeResultData(req.ResultFileData)
		if err != nil {
			return RunRecord{}, fmt.Errorf("decode result payload: %w", err)
		}
		resultPath := filepath.Join(dirPath, name)
		if err := os.WriteFile(resultPath, blob, 0o644); err != nil {
			return RunRecord{}, fmt.Errorf("write result file: %w", err)
		}
		record.ResultFile = resultPath
	}

	if err := writeJSON(filepath.Join(dirPath, "summary.json"), record); err != nil {
		return RunRecord{}, err
	}
	if err := writeJSON(filepath.Join(dirPath, "params.json"), req.Params); err != nil {
		return RunRecord{}, err
	}
	if err := os.WriteFile(filepath.Join(dirPath, "transcript.log"), []byte(req.Transcript), 0o644); err != nil {
		return RunRecord{}, fmt.Errorf("write transcript: %w", err)
	}
	return record, nil
}

// List returns saved runs, newest first.
func (s *Store) List(limit int) ([]RunRecord, error) {
	entries, err := os.ReadDir(s.runsDir)
	if err != nil {
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	records := make([]RunRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		summaryPath := filepath.Join(s.runsDir, entry.Name(), "summary.json")
		blob, err := os.ReadFile(summaryPath)
		if err != nil {
			continue
		}
		var record RunRecord
		if err := json.Unmarshal(blob, &record); err != nil {
			continue
		}
		if record.Directory == "" {
			record.Directory = filepath.Join(s.runsDir, entry.Name())
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SavedAt > records[j].SavedAt
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DecodeResultData decodes the backend's artifact payload. The widget
// protocol wraps it as data:<mime>;base64,<payload>; bare base64 is also
// accepted.
func DecodeResultData(data string) ([]byte, error) {
	payload := data
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("data URI has no payload separator")
		}
		meta := payload[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("unsupported data URI encoding %q", meta)
		}
		payload = payload[comma+1:]
	}
	blob, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return blob, nil
}

func safeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "result.bin"
	}
	return name
}

func writeJSON(path string, value any) error {
	blob, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json for %s: %w", path, err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
