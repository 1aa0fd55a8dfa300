// Package service manages the Python pipeline runner sidecar and speaks its
// shared-state protocol: a JSON field store over HTTP, a one-shot message
// endpoint, and an SSE event stream for pushes.
package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
)

type handshakePayload struct {
	Event string `json:"event"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"token"`
	PID   int    `json:"pid"`
}

type apiError struct {
	Error string `json:"error"`
}

// FieldChange is a backend-originated shared-state field update.
type FieldChange struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Event is one frame of the sidecar's push stream: either a field change or
// a one-shot message, never both.
type Event struct {
	Change  *FieldChange
	Message *dispatch.Message
}

// Manager owns the sidecar process and the HTTP client talking to it.
type Manager struct {
	rootDir string
	command []string

	mu        sync.RWMutex
	started   bool
	cmd       *exec.Cmd
	host      string
	port      int
	token     string
	processID int

	logsMu sync.Mutex
	logs   []string

	httpClient *http.Client
}

// NewManager prepares a manager for the given working directory. command is
// the sidecar invocation; when empty the bundled Python service is used.
func NewManager(rootDir string, command []string) *Manager {
	return &Manager{
		rootDir: rootDir,
		command: command,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

func (m *Manager) appendLog(line string) {
	m.logsMu.Lock()
	defer m.logsMu.Unlock()
	m.logs = append(m.logs, line)
	if len(m.logs) > 600 {
		m.logs = m.logs[len(m.logs)-600:]
	}
}

// Logs returns the captured sidecar stdout/stderr tail.
func (m *Manager) Logs() string {
	m.logsMu.Lock()
	defer m.logsMu.Unlock()
	return strings.Join(m.logs, "\n")
}

func (m *Manager) resolvePython() string {
	venvPython := filepath.Join(m.rootDir, ".venv", "bin", "python")
	if info, err := os.Stat(venvPython); err == nil && !info.IsDir() {
		return venvPython
	}
	if custom := strings.TrimSpace(os.Getenv("LAUNCHER_PYTHON")); custom != "" {
		return custom
	}
	return "python3"
}

func (m *Manager) sidecarCommand() (string, []string) {
	if len(m.command) > 0 {
		return m.command[0], m.command[1:]
	}
	script := filepath.Join(m.rootDir, "python_service", "pipeline_service.py")
	return m.resolvePython(), []string{"-u", script}
}

// Start launches the sidecar, waits for its one-line JSON handshake on
// stdout, and verifies health. Starting an already started manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	bin, args := m.sidecarCommand()
	cmd := exec.Command(bin, args...)
	cmd.Dir = m.rootDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline service: %w", err)
	}

	handshakeLine := make(chan string, 1)
	stdoutScannerDone := make(chan struct{})
	go func() {
		defer close(stdoutScannerDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
		first := true
		for scanner.Scan() {
			line := scanner.Text()
			if first {
				first = false
				handshakeLine <- line
				continue
			}
			m.appendLog("service stdout: " + line)
		}
		if scanErr := scanner.Err(); scanErr != nil {
			m.appendLog("service stdout scan error: " + scanErr.Error())
		}
	}()

	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
		for scanner.Scan() {
			m.appendLog("service stderr: " + scanner.Text())
		}
		if scanErr := scanner.Err(); scanErr != nil {
			m.appendLog("service stderr scan error: " + scanErr.Error())
		}
	}()

	waitHandshake := 12 * time.Second
	var line string
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return ctx.Err()
	case line = <-handshakeLine:
	case <-time.After(waitHandshake):
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return fmt.Errorf("service handshake timed out after %s", waitHandshake)
	}

	var handshake handshakePayload
	if err := json.Unmarshal([]byte(line), &handshake); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return fmt.Errorf("parse handshake: %w", err)
	}
	if handshake.Host == "" || handshake.Port <= 0 || handshake.Token == "" {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return fmt.Errorf("invalid handshake payload: %s", line)
	}

	m.mu.Lock()
	m.started = true
	m.cmd = cmd
	m.host = handshake.Host
	m.port = handshake.Port
	m.token = handshake.Token
	m.processID = handshake.PID
	m.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			m.appendLog("service process exited with error: " + err.Error())
		} else {
			m.appendLog("service process exited")
		}
		<-stdoutScannerDone
		m.mu.Lock()
		m.started = false
		m.cmd = nil
		m.mu.Unlock()
	}()

	healthCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.Health(healthCtx); err != nil {
		_ = m.Stop()
		return fmt.Errorf("service health check failed: %w", err)
	}
	return nil
}

func (m *Manager) endpoint() (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started || m.host == "" || m.port <= 0 || m.token == "" {
		return "", "", fmt.Errorf("service is not running")
	}
	return fmt.Sprintf("http://%s:%d", m.host, m.port), m.token, nil
}

// Stop terminates the sidecar, first politely, then with a kill.
func (m *Manager) Stop() error {
	m.mu.RLock()
	cmd := m.cmd
	started := m.started
	m.mu.RUnlock()

	if !started || cmd == nil || cmd.Process == nil {
		m.mu.Lock()
		m.started = false
		m.cmd = nil
		m.host = ""
		m.port = 0
		m.token = ""
		m.processID = 0
		m.mu.Unlock()
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.RLock()
		running := m.started
		m.mu.RUnlock()
		if !running {
			return nil
		}
		time.Sleep(75 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.RLock()
		running := m.started
		m.mu.RUnlock()
		if !running {
			return nil
		}
		time.Sleep(75 * time.Millisecond)
	}

	m.mu.Lock()
	m.started = false
	m.cmd = nil
	m.host = ""
	m.port = 0
	m.token = ""
	m.processID = 0
	m.mu.Unlock()
	return nil
}

func (m *Manager) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	endpoint, token, err := m.endpoint()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Launcher-Token", token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		blob, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(blob, &apiErr) == nil && strings.TrimSpace(apiErr.Error) != "" {
			return fmt.Errorf("api %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("api %s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health probes the sidecar's health endpoint.
func (m *Manager) Health(ctx context.Context) error {
	endpoint, _, err := m.endpoint()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// State fetches a snapshot of all shared-state fields.
func (m *Manager) State(ctx context.Context) (map[string]any, error) {
	var fields map[string]any
	if err := m.doJSON(ctx, http.MethodGet, "/state", nil, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// SetState persists a batch of field writes.
func (m *Manager) SetState(ctx context.Context, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return m.doJSON(ctx, http.MethodPost, "/state", fields, nil)
}

// SendMessage posts a one-shot message. Some messages (poll) answer with a
// reply message in the response body; the reply is nil otherwise.
func (m *Manager) SendMessage(ctx context.Context, msg dispatch.Message) (*dispatch.Message, error) {
	var reply dispatch.Message
	if err := m.doJSON(ctx, http.MethodPost, "/message", msg, &reply); err != nil {
		return nil, err
	}
	if reply.Kind == "" {
		return nil, nil
	}
	return &reply, nil
}

// StreamEvents tails the sidecar's SSE stream and forwards each frame to
// sink until the stream ends or ctx is cancelled. The sink is closed on
// return.
func (m *Manager) StreamEvents(ctx context.Context, sink chan<- Event) error {
	defer close(sink)

	endpoint, token, err := m.endpoint()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Launcher-Token", token)
	req.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		blob, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("event stream request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(blob)))
	}

	return scanEventStream(ctx, resp.Body, sink)
}

const (
	initialScanBuffer = 128 * 1024
	maxScanBuffer     = 16 * 1024 * 1024
)

// scanEventStream parses SSE frames. "change" frames carry a FieldChange,
// "message" frames (the default) carry a dispatch.Message.
func scanEventStream(ctx context.Context, r io.Reader, sink chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	currentEvent := ""
	dataLines := make([]string, 0, 4)
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var event Event
		switch currentEvent {
		case "change":
			var change FieldChange
			if err := json.Unmarshal([]byte(raw), &change); err != nil {
				return fmt.Errorf("decode change event: %w", err)
			}
			event.Change = &change
		default:
			var msg dispatch.Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				return fmt.Errorf("decode message event: %w", err)
			}
			event.Message = &msg
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sink <- event:
			return nil
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return err
			}
			currentEvent = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			dataLines = append(dataLines, payload)
			continue
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("event frame exceeded max size (%d bytes)", maxScanBuffer)
		}
		return err
	}
	return nil
}
