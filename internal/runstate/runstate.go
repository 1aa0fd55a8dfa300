// Package runstate tracks the canonical status of the current pipeline run
// and derives the control affordances from it.
package runstate

// Status is the backend-reported run status. The backend is authoritative:
// the launcher never invents a value, it only reflects the last one observed
// from a field change or a pushed message.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusAborted  Status = "aborted"
	StatusFinished Status = "finished"
)

// Active reports whether the run is still executing.
func (s Status) Active() bool { return s == StatusRunning }

// Failed reports whether the run ended badly.
func (s Status) Failed() bool { return s == StatusError || s == StatusAborted }

// Terminal reports whether the status means the run is over. Unknown
// non-running literals count as terminal-without-error; the backend's
// normal-completion literal is "finished".
func (s Status) Terminal() bool { return s != "" && s != StatusRunning }

// Machine applies status transitions from exactly one place. Local actions
// may only enter the running state (run or action request); leaving it is
// always driven by an externally observed value or the terminal signal.
type Machine struct {
	status           Status
	terminatePending bool
	terminalSeen     bool
}

func NewMachine() *Machine {
	return &Machine{status: StatusIdle}
}

// Status returns the last observed status value.
func (m *Machine) Status() Status { return m.status }

// Active reports whether the view should treat a run as in flight. A
// terminal run-finished signal ends the run even when no status value was
// carried alongside it.
func (m *Machine) Active() bool {
	return m.status.Active() && !m.terminalSeen
}

// BeginLocalRun enters the running state for a locally initiated run or
// action request. The caller resets the transcript at the same point.
func (m *Machine) BeginLocalRun() {
	m.status = StatusRunning
	m.terminatePending = false
	m.terminalSeen = false
}

// RequestTerminate records that the user asked the backend to stop. It does
// not change the status; the transition to aborted arrives from the backend.
func (m *Machine) RequestTerminate() bool {
	if !m.Active() {
		return false
	}
	m.terminatePending = true
	return true
}

// TerminatePending reports whether an abort request is in flight.
func (m *Machine) TerminatePending() bool { return m.terminatePending }

// Observe applies an externally observed status value. Empty values are
// ignored. It reports whether the canonical status changed.
func (m *Machine) Observe(raw string) bool {
	if raw == "" {
		return false
	}
	next := Status(raw)
	if next.Active() {
		// Re-entrant running, e.g. a backend-side action. A terminal
		// signal leaves the status value at running, so this has to land
		// before the unchanged-value check.
		m.terminalSeen = false
	}
	if next == m.status {
		return false
	}
	m.status = next
	if !next.Active() {
		m.terminatePending = false
	}
	return true
}

// MarkTerminal records an authoritative run-finished signal that carried no
// status value. The status field keeps its last observed value, but the run
// no longer counts as active.
func (m *Machine) MarkTerminal() {
	m.terminalSeen = true
	m.terminatePending = false
}

// Abandon returns to idle after a local request failed before reaching the
// backend. No run was started, so no backend status will ever arrive.
func (m *Machine) Abandon() {
	m.status = StatusIdle
	m.terminatePending = false
	m.terminalSeen = false
}

// ToggleLabel names the single run control: launch when idle, abort while
// a run is in flight.
func (m *Machine) ToggleLabel() string {
	if m.Active() {
		return "Abort"
	}
	return "Run"
}

// ActionsEnabled reports whether auxiliary pipeline actions may be issued.
func (m *Machine) ActionsEnabled() bool { return !m.Active() }
