// Package app is the terminal UI for the phage assembly launcher. It binds
// the params editor, the live transcript, and the run controls to the shared
// state facade, and drives the poll cadence from inside the update loop.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/leightonpayne/colab-phage-assembly/internal/config"
	"github.com/leightonpayne/colab-phage-assembly/internal/dispatch"
	"github.com/leightonpayne/colab-phage-assembly/internal/logstream"
	"github.com/leightonpayne/colab-phage-assembly/internal/poll"
	"github.com/leightonpayne/colab-phage-assembly/internal/runstate"
	"github.com/leightonpayne/colab-phage-assembly/internal/statesync"
	"github.com/leightonpayne/colab-phage-assembly/internal/storage"
)

const syncBatchLimit = 64

// syncEvent is one facade notification, either a field change or an inbound
// message, handed from the transport goroutine to the update loop.
type syncEvent struct {
	field string
	value any
	msg   *dispatch.Message
}

type syncEventMsg struct {
	events []syncEvent
	ok     bool
}

type pollTickMsg struct {
	at time.Time
}

type pollSentMsg struct {
	err error
}

type persistOp int

const (
	persistRun persistOp = iota
	persistTerminate
	persistAction
)

type persistDoneMsg struct {
	op  persistOp
	err error
}

type historyLoadedMsg struct {
	items []storage.RunRecord
	err   error
}

type bundleSavedMsg struct {
	record storage.RunRecord
	err    error
}

type paramsFileLoadedMsg struct {
	path string
	text string
	err  error
}

type paramsFileChangedMsg struct {
	event config.ParamsEvent
	ok    bool
}

type focusPane int

const (
	paneParams focusPane = iota
	paneTranscript
	paneHistory
)

// resultSlot holds the latest result artifact. It is shared by pointer so
// the dispatcher callback and model copies see the same value.
type resultSlot struct {
	name string
	data string
}

func (r *resultSlot) set(data, name string) {
	r.data = data
	if name != "" {
		r.name = name
	}
}

func (r *resultSlot) clear() {
	r.name = ""
	r.data = ""
}

func (r *resultSlot) has() bool { return r.data != "" }

// Options tunes the model beyond its required collaborators.
type Options struct {
	// PollInterval overrides the log poll cadence.
	PollInterval time.Duration
	// HistoryLimit caps the run history pane. Zero means 200.
	HistoryLimit int
	// ParamsEvents, when set, delivers on-disk edits of the params file.
	ParamsEvents <-chan config.ParamsEvent
	// ParamsPath is the file behind ParamsEvents, preloaded at startup.
	ParamsPath string
}

type Model struct {
	facade statesync.Facade
	store  *storage.Store

	transcript *logstream.Transcript
	machine    *runstate.Machine
	scheduler  *poll.Scheduler
	dispatcher *dispatch.Dispatcher
	result     *resultSlot

	syncCh chan syncEvent
	subs   []*statesync.Subscription

	pollInterval time.Duration
	historyLimit int
	paramsEvents <-chan config.ParamsEvent

	runID       string
	runParams   map[string]any
	bundleSaved bool

	ready  bool
	width  int
	height int

	paramsEditor  textarea.Model
	actionInput   textinput.Model
	pathInput     textinput.Model
	transcriptVP  viewport.Model
	historyVP     viewport.Model
	spinner       spinner.Model
	focusPane     focusPane
	showHelp      bool
	showActionBox bool
	showPathBox   bool
	autoFollow    bool

	paramsDirty    bool
	lastParamsPath string

	statusMessage string
	errorText     string

	historyItems  []storage.RunRecord
	historyCursor int

	paramsPanelW int
	paramsPanelH int
	transcriptW  int
	transcriptH  int
	historyW     int
	historyH     int
}

func NewModel(facade statesync.Facade, store *storage.Store, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = poll.DefaultInterval
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 200
	}

	editor := textarea.New()
	editor.CharLimit = 1_000_000
	editor.Prompt = ""
	editor.ShowLineNumbers = true
	editor.SetWidth(60)
	editor.SetHeight(18)
	editor.Placeholder = "Waiting for params from the pipeline service..."
	editor.Focus()

	actionInput := textinput.New()
	actionInput.Prompt = "> "
	actionInput.Placeholder = "action name, e.g. fetch_databases"
	actionInput.CharLimit = 256
	actionInput.Width = 50

	pathInput := textinput.New()
	pathInput.Prompt = "> "
	pathInput.Placeholder = "./params.json"
	pathInput.CharLimit = 2048
	pathInput.Width = 60

	transcriptVP := viewport.New(70, 20)
	transcriptVP.SetContent("No run yet. Press ctrl+r to launch the pipeline.")

	historyVP := viewport.New(40, 8)
	historyVP.SetContent("No saved runs yet.")

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = spinnerStyle

	result := &resultSlot{}
	transcript := &logstream.Transcript{}
	machine := runstate.NewMachine()
	scheduler := poll.NewScheduler(opts.PollInterval)

	m := Model{
		facade:     facade,
		store:      store,
		transcript: transcript,
		machine:    machine,
		scheduler:  scheduler,
		result:     result,
		dispatcher: &dispatch.Dispatcher{
			Transcript: transcript,
			Machine:    machine,
			Scheduler:  scheduler,
			OnResult:   result.set,
		},
		syncCh:         make(chan syncEvent, 256),
		pollInterval:   opts.PollInterval,
		historyLimit:   opts.HistoryLimit,
		paramsEvents:   opts.ParamsEvents,
		lastParamsPath: strings.TrimSpace(opts.ParamsPath),
		paramsEditor:   editor,
		actionInput:    actionInput,
		pathInput:      pathInput,
		transcriptVP:   transcriptVP,
		historyVP:      historyVP,
		spinner:        spin,
		focusPane:      paneParams,
		showHelp:       true,
		autoFollow:     true,
		statusMessage:  "Service connected.",
		paramsPanelW:   64,
		paramsPanelH:   20,
		transcriptW:    74,
		transcriptH:    20,
		historyW:       44,
		historyH:       10,
	}

	m.subscribe()
	m.seedFromSnapshot()
	return m
}

// subscribe registers the facade handlers that feed the update loop. The
// send blocks when the buffer fills, which backpressures the transport pump
// instead of dropping log fragments.
func (m *Model) subscribe() {
	fields := []string{
		statesync.FieldStatusState,
		statesync.FieldStatusMessage,
		statesync.FieldLogs,
		statesync.FieldResultFileName,
		statesync.FieldResultFileData,
		statesync.FieldParamsValues,
		statesync.FieldParamsSchema,
	}
	for _, field := range fields {
		field := field
		sub := m.facade.OnChange(field, func(value any) {
			m.syncCh <- syncEvent{field: field, value: value}
		})
		m.subs = append(m.subs, sub)
	}
	sub := m.facade.OnMessage(func(msg dispatch.Message) {
		m.syncCh <- syncEvent{msg: &msg}
	})
	m.subs = append(m.subs, sub)
}

func (m *Model) closeSubs() {
	for _, sub := range m.subs {
		sub.Close()
	}
	m.subs = nil
}

// seedFromSnapshot picks up a run already in flight when the launcher
// attaches, so reconnecting does not lose the transcript or the status.
func (m *Model) seedFromSnapshot() {
	if raw, ok := m.facade.Get(statesync.FieldStatusState).(string); ok {
		m.machine.Observe(raw)
	}
	if text, ok := m.facade.Get(statesync.FieldStatusMessage).(string); ok && text != "" {
		m.statusMessage = text
	}
	if logs, ok := m.facade.Get(statesync.FieldLogs).(string); ok && logs != "" {
		m.transcript.ApplyFull(logs)
		m.transcriptVP.SetContent(m.transcript.Text())
		m.transcriptVP.GotoBottom()
	}
	if name, ok := m.facade.Get(statesync.FieldResultFileName).(string); ok {
		m.result.name = name
	}
	if data, ok := m.facade.Get(statesync.FieldResultFileData).(string); ok {
		m.result.data = data
	}
	if params, ok := m.facade.Get(statesync.FieldParamsValues).(map[string]any); ok && len(params) > 0 {
		if text, err := FormatParamsJSON(params); err == nil {
			m.paramsEditor.SetValue(text)
		}
	} else if schema, ok := m.facade.Get(statesync.FieldParamsSchema).(map[string]any); ok {
		// No persisted params yet; start from the schema's declared defaults.
		if text, err := FormatParamsJSON(DefaultsFromSchema(schema)); err == nil {
			m.paramsEditor.SetValue(text)
		}
	}
	if m.machine.Active() {
		m.scheduler.Arm()
		m.runID = uuid.NewString()
		m.statusMessage = "Reattached to a run in flight."
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForSyncEventCmd(m.syncCh),
		loadHistoryCmd(m.store, m.historyLimit),
	}
	if m.paramsEvents != nil {
		cmds = append(cmds, waitForParamsEventCmd(m.paramsEvents))
	}
	if m.lastParamsPath != "" && strings.TrimSpace(m.paramsEditor.Value()) == "" {
		cmds = append(cmds, loadParamsFileCmd(m.lastParamsPath))
	}
	if m.scheduler.Armed() {
		cmds = append(cmds, m.spinner.Tick, pollTickCmd(m.pollInterval))
	}
	return tea.Batch(cmds...)
}

// waitForSyncEventCmd blocks on the facade channel and drains whatever else
// is immediately available, so a burst of fragments costs one Update.
func waitForSyncEventCmd(ch <-chan syncEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return syncEventMsg{ok: false}
		}
		events := make([]syncEvent, 0, syncBatchLimit)
		events = append(events, event)
		for len(events) < syncBatchLimit {
			select {
			case next, ok := <-ch:
				if !ok {
					return syncEventMsg{events: events, ok: true}
				}
				events = append(events, next)
			default:
				return syncEventMsg{events: events, ok: true}
			}
		}
		return syncEventMsg{events: events, ok: true}
	}
}

func pollTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(at time.Time) tea.Msg {
		return pollTickMsg{at: at}
	})
}

func sendPollCmd(facade statesync.Facade, offset int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return pollSentMsg{err: facade.Send(ctx, dispatch.PollRequest(offset))}
	}
}

func persistCmd(facade statesync.Facade, op persistOp) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return persistDoneMsg{op: op, err: facade.Persist(ctx)}
	}
}

func loadHistoryCmd(store *storage.Store, limit int) tea.Cmd {
	return func() tea.Msg {
		items, err := store.List(limit)
		return historyLoadedMsg{items: items, err: err}
	}
}

func saveBundleCmd(store *storage.Store, req storage.SaveRequest) tea.Cmd {
	return func() tea.Msg {
		record, err := store.SaveRun(req)
		return bundleSavedMsg{record: record, err: err}
	}
}

func loadParamsFileCmd(path string) tea.Cmd {
	requested := strings.TrimSpace(path)
	return func() tea.Msg {
		params, resolved, err := LoadParamsFile(requested)
		if err != nil {
			return paramsFileLoadedMsg{path: requested, err: err}
		}
		text, err := FormatParamsJSON(params)
		if err != nil {
			return paramsFileLoadedMsg{path: resolved, err: err}
		}
		return paramsFileLoadedMsg{path: resolved, text: text}
	}
}

func waitForParamsEventCmd(ch <-chan config.ParamsEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		return paramsFileChangedMsg{event: event, ok: ok}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizePanels()
		return m, nil

	case spinner.TickMsg:
		if !m.machine.Active() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollTickMsg:
		decision := m.scheduler.OnTick(m.machine.Active())
		var cmds []tea.Cmd
		if decision.Poll {
			cmds = append(cmds, sendPollCmd(m.facade, m.transcript.Offset()))
		}
		if decision.Rearm {
			cmds = append(cmds, pollTickCmd(m.pollInterval))
		}
		if len(cmds) == 0 {
			return m, nil
		}
		return m, tea.Batch(cmds...)

	case pollSentMsg:
		if msg.err != nil {
			m.errorText = "Log poll failed: " + msg.err.Error()
		}
		return m, nil

	case syncEventMsg:
		return m.handleSyncEvents(msg)

	case persistDoneMsg:
		return m.handlePersistDone(msg)

	case historyLoadedMsg:
		if msg.err != nil {
			m.errorText = "Failed to load run history: " + msg.err.Error()
			return m, nil
		}
		m.historyItems = msg.items
		if m.historyCursor >= len(m.historyItems) {
			m.historyCursor = maxInt(0, len(m.historyItems)-1)
		}
		m.refreshHistoryView()
		return m, nil

	case bundleSavedMsg:
		if msg.err != nil {
			m.errorText = "Could not save run bundle: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "Saved run bundle: " + msg.record.Directory
		return m, loadHistoryCmd(m.store, m.historyLimit)

	case paramsFileLoadedMsg:
		if msg.err != nil {
			m.errorText = "Params file load failed: " + msg.err.Error()
			return m, nil
		}
		m.paramsEditor.SetValue(msg.text)
		m.paramsDirty = false
		m.lastParamsPath = msg.path
		m.errorText = ""
		m.statusMessage = "Loaded params file: " + msg.path
		return m, nil

	case paramsFileChangedMsg:
		if !msg.ok {
			return m, nil
		}
		rewait := waitForParamsEventCmd(m.paramsEvents)
		if msg.event.Error != nil {
			m.errorText = "Params watcher: " + msg.event.Error.Error()
			return m, rewait
		}
		if m.paramsDirty {
			m.statusMessage = "Params file changed on disk; editor has unsaved edits (ctrl+o to reload)."
			return m, rewait
		}
		return m, tea.Batch(rewait, loadParamsFileCmd(msg.event.Path))

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.focusPane == paneTranscript {
			var cmd tea.Cmd
			m.transcriptVP, cmd = m.transcriptVP.Update(msg)
			m.autoFollow = m.transcriptVP.AtBottom()
			return m, cmd
		}
		if m.focusPane == paneHistory {
			var cmd tea.Cmd
			m.historyVP, cmd = m.historyVP.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m Model) handleSyncEvents(msg syncEventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		// Channel closed; the facade is shutting down.
		return m, nil
	}

	transcriptDirty := false
	for _, ev := range msg.events {
		if ev.msg != nil {
			effects := m.dispatcher.Dispatch(*ev.msg)
			if effects.Appended != "" || effects.Terminal {
				transcriptDirty = true
			}
			if effects.Gap > 0 {
				m.statusMessage = fmt.Sprintf("Log stream skipped %d bytes.", effects.Gap)
			}
			continue
		}

		switch ev.field {
		case statesync.FieldStatusState:
			raw, _ := ev.value.(string)
			m.machine.Observe(raw)
		case statesync.FieldStatusMessage:
			if text, ok := ev.value.(string); ok {
				m.statusMessage = text
			}
		case statesync.FieldLogs:
			full, _ := ev.value.(string)
			applied := m.transcript.ApplyFull(full)
			if applied.Suffix != "" {
				transcriptDirty = true
			}
		case statesync.FieldResultFileName:
			if name, ok := ev.value.(string); ok {
				m.result.name = name
			}
		case statesync.FieldResultFileData:
			if data, ok := ev.value.(string); ok {
				m.result.data = data
			}
		case statesync.FieldParamsValues:
			if params, ok := ev.value.(map[string]any); ok && !m.paramsDirty {
				if text, err := FormatParamsJSON(params); err == nil {
					m.paramsEditor.SetValue(text)
				}
			}
		case statesync.FieldParamsSchema:
			schema, ok := ev.value.(map[string]any)
			if ok && !m.paramsDirty && strings.TrimSpace(m.paramsEditor.Value()) == "" {
				if text, err := FormatParamsJSON(DefaultsFromSchema(schema)); err == nil {
					m.paramsEditor.SetValue(text)
				}
			}
		}
	}

	if transcriptDirty {
		m.transcriptVP.SetContent(m.transcript.Text())
		if m.autoFollow {
			m.transcriptVP.GotoBottom()
		}
	}

	cmds := []tea.Cmd{waitForSyncEventCmd(m.syncCh)}
	if m.machine.Active() && m.scheduler.Arm() {
		// Backend-initiated run: start polling just as a local launch would.
		cmds = append(cmds, m.spinner.Tick, pollTickCmd(m.pollInterval))
	}
	if cmd := m.maybeFinalizeRun(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// maybeFinalizeRun saves the run bundle once the run we launched is over.
// Leaving the running state is always backend-driven; the scheduler fires
// its one flush poll on its own.
func (m *Model) maybeFinalizeRun() tea.Cmd {
	if m.machine.Active() || m.runID == "" || m.bundleSaved {
		return nil
	}
	m.bundleSaved = true
	status := m.machine.Status()
	m.errorText = ""
	switch {
	case status.Failed():
		m.errorText = "Run ended with status " + string(status) + ": " + m.statusMessage
	case m.result.has():
		m.statusMessage = "Run finished; result " + m.result.name + " saved to the runs directory."
	default:
		m.statusMessage = "Run finished."
	}
	return saveBundleCmd(m.store, storage.SaveRequest{
		RunID:          m.runID,
		Params:         m.runParams,
		Transcript:     m.transcript.Text(),
		Status:         string(status),
		StatusMessage:  m.statusMessage,
		ResultFileName: m.result.name,
		ResultFileData: m.result.data,
	})
}

func (m Model) handlePersistDone(msg persistDoneMsg) (tea.Model, tea.Cmd) {
	switch msg.op {
	case persistRun:
		if msg.err != nil {
			// The request never reached the backend, so no status will.
			m.machine.Abandon()
			m.scheduler.Disarm()
			m.runID = ""
			m.runParams = nil
			m.errorText = "Run request failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "Run requested. Waiting for the pipeline to start."
	case persistTerminate:
		if msg.err != nil {
			m.errorText = "Terminate request failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "Terminate requested. Waiting for the pipeline to stop."
	case persistAction:
		if msg.err != nil {
			m.machine.Abandon()
			m.scheduler.Disarm()
			m.runID = ""
			m.errorText = "Action request failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "Action requested."
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showActionBox {
		return m.handleActionPromptKey(msg)
	}
	if m.showPathBox {
		return m.handlePathPromptKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		m.closeSubs()
		return m, tea.Quit
	case "q":
		// Plain q quits only outside the editor, where it is a character.
		if m.focusPane != paneParams {
			m.closeSubs()
			return m, tea.Quit
		}
	case "tab":
		m.focusPane = nextFocusPane(m.focusPane)
		m.applyFocusState()
		return m, nil
	case "shift+tab", "backtab":
		m.focusPane = prevFocusPane(m.focusPane)
		m.applyFocusState()
		return m, nil
	case "?":
		if m.focusPane != paneParams {
			m.showHelp = !m.showHelp
			return m, nil
		}
	case "ctrl+r":
		return m.toggleRun()
	case "ctrl+a":
		if !m.machine.ActionsEnabled() {
			m.errorText = "Actions are unavailable while a run is active."
			return m, nil
		}
		m.showActionBox = true
		m.actionInput.SetValue("")
		m.actionInput.Focus()
		m.paramsEditor.Blur()
		m.statusMessage = "Type an action name and press Enter."
		return m, nil
	case "ctrl+s":
		return m.saveCurrentRun()
	case "ctrl+o":
		m.showPathBox = true
		m.pathInput.SetValue(m.lastParamsPath)
		m.pathInput.CursorEnd()
		m.pathInput.Focus()
		m.paramsEditor.Blur()
		m.statusMessage = "Enter a params JSON path and press Enter."
		return m, nil
	}

	switch m.focusPane {
	case paneParams:
		var cmd tea.Cmd
		before := m.paramsEditor.Value()
		m.paramsEditor, cmd = m.paramsEditor.Update(msg)
		if m.paramsEditor.Value() != before {
			m.paramsDirty = true
		}
		return m, cmd
	case paneTranscript:
		var cmd tea.Cmd
		m.transcriptVP, cmd = m.transcriptVP.Update(msg)
		m.autoFollow = m.transcriptVP.AtBottom()
		return m, cmd
	case paneHistory:
		switch msg.String() {
		case "up", "k":
			m.historyCursor = clampInt(m.historyCursor-1, 0, maxInt(0, len(m.historyItems)-1))
			m.refreshHistoryView()
			return m, nil
		case "down", "j":
			m.historyCursor = clampInt(m.historyCursor+1, 0, maxInt(0, len(m.historyItems)-1))
			m.refreshHistoryView()
			return m, nil
		case "enter":
			if len(m.historyItems) > 0 {
				item := m.historyItems[clampInt(m.historyCursor, 0, len(m.historyItems)-1)]
				m.statusMessage = "Run bundle: " + item.Directory
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.historyVP, cmd = m.historyVP.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleActionPromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.closeSubs()
		return m, tea.Quit
	case "esc":
		m.showActionBox = false
		m.actionInput.Blur()
		m.applyFocusState()
		m.statusMessage = "Action cancelled."
		return m, nil
	case "enter":
		name := strings.TrimSpace(m.actionInput.Value())
		m.showActionBox = false
		m.actionInput.Blur()
		m.applyFocusState()
		if name == "" {
			m.errorText = "Action name is required."
			return m, nil
		}
		return m.requestAction(name)
	}
	var cmd tea.Cmd
	m.actionInput, cmd = m.actionInput.Update(msg)
	return m, cmd
}

func (m Model) handlePathPromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.closeSubs()
		return m, tea.Quit
	case "esc":
		m.showPathBox = false
		m.pathInput.Blur()
		m.applyFocusState()
		m.statusMessage = "Params file load cancelled."
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.pathInput.Value())
		m.showPathBox = false
		m.pathInput.Blur()
		m.applyFocusState()
		if path == "" {
			m.errorText = "Params file path is required."
			return m, nil
		}
		m.errorText = ""
		m.statusMessage = "Loading params file..."
		return m, loadParamsFileCmd(path)
	}
	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

// toggleRun is the single run control: launch when idle, request terminate
// while a run is in flight. Termination is a request flag, not a local
// status transition.
func (m Model) toggleRun() (tea.Model, tea.Cmd) {
	if m.machine.Active() {
		if m.machine.TerminatePending() {
			m.statusMessage = "Terminate already requested."
			return m, nil
		}
		m.machine.RequestTerminate()
		m.facade.Set(statesync.FieldTerminateRequested, true)
		m.statusMessage = "Requesting terminate..."
		return m, persistCmd(m.facade, persistTerminate)
	}

	params, err := ParseParamsJSON(m.paramsEditor.Value())
	if err != nil {
		m.errorText = "Params parse error: " + err.Error()
		return m, nil
	}

	m.beginRun(params)
	m.facade.Set(statesync.FieldParamsValues, params)
	m.facade.Set(statesync.FieldRunRequested, true)
	m.statusMessage = "Launching pipeline run..."
	return m, tea.Batch(
		m.spinner.Tick,
		pollTickCmd(m.pollInterval),
		persistCmd(m.facade, persistRun),
	)
}

func (m Model) requestAction(name string) (tea.Model, tea.Cmd) {
	m.beginRun(nil)
	m.facade.Set(statesync.FieldActionRequested, map[string]any{
		"name":  name,
		"nonce": uuid.NewString(),
	})
	m.statusMessage = "Requesting action " + name + "..."
	return m, tea.Batch(
		m.spinner.Tick,
		pollTickCmd(m.pollInterval),
		persistCmd(m.facade, persistAction),
	)
}

// beginRun resets the merge cursor and enters the running state before the
// request leaves, so no fragment of the new run can be judged against the
// old cursor.
func (m *Model) beginRun(params map[string]any) {
	m.transcript.Reset()
	m.machine.BeginLocalRun()
	m.scheduler.Arm()
	m.result.clear()
	m.runID = uuid.NewString()
	m.runParams = params
	m.bundleSaved = false
	m.errorText = ""
	m.transcriptVP.SetContent("")
	m.autoFollow = true
}

func (m Model) saveCurrentRun() (tea.Model, tea.Cmd) {
	if m.transcript.Len() == 0 && !m.result.has() {
		m.errorText = "Nothing to save yet."
		return m, nil
	}
	m.statusMessage = "Saving run bundle..."
	return m, saveBundleCmd(m.store, storage.SaveRequest{
		RunID:          m.runID,
		Params:         m.runParams,
		Transcript:     m.transcript.Text(),
		Status:         string(m.machine.Status()),
		StatusMessage:  m.statusMessage,
		ResultFileName: m.result.name,
		ResultFileData: m.result.data,
	})
}

func (m *Model) applyFocusState() {
	if m.showActionBox || m.showPathBox {
		m.paramsEditor.Blur()
		return
	}
	if m.focusPane == paneParams {
		m.paramsEditor.Focus()
	} else {
		m.paramsEditor.Blur()
	}
}

func nextFocusPane(p focusPane) focusPane {
	switch p {
	case paneParams:
		return paneTranscript
	case paneTranscript:
		return paneHistory
	default:
		return paneParams
	}
}

func prevFocusPane(p focusPane) focusPane {
	switch p {
	case paneParams:
		return paneHistory
	case paneHistory:
		return paneTranscript
	default:
		return paneParams
	}
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
