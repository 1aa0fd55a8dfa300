// Package dispatch routes inbound backend messages to the transcript, the
// run-status machine and the result artifact. Both delivery channels (the
// push stream and poll responses) converge here, so every fragment goes
// through the same merge function regardless of how it arrived.
package dispatch

import (
	"github.com/leightonpayne/colab-phage-assembly/internal/logstream"
	"github.com/leightonpayne/colab-phage-assembly/internal/poll"
	"github.com/leightonpayne/colab-phage-assembly/internal/runstate"
)

// Effects reports what a dispatched message changed, so the view can
// refresh only what moved.
type Effects struct {
	// Appended is the transcript suffix added by this message.
	Appended string
	// Gap is the byte count skipped when a fragment started past the cursor.
	Gap int
	// StatusChanged is set when the canonical status value moved.
	StatusChanged bool
	// ResultUpdated is set when a new result artifact arrived.
	ResultUpdated bool
	// Terminal is set by the authoritative run-finished signal. Polling has
	// been disarmed by the time the caller sees it.
	Terminal bool
}

// Dispatcher classifies inbound messages by kind. It never fails: stale,
// malformed or unknown input degrades to an empty Effects.
type Dispatcher struct {
	Transcript *logstream.Transcript
	Machine    *runstate.Machine
	Scheduler  *poll.Scheduler

	// OnResult receives the artifact payload and file name when a result
	// becomes available. Optional.
	OnResult func(data, name string)
}

// Dispatch routes one message.
func (d *Dispatcher) Dispatch(msg Message) Effects {
	switch msg.Kind {
	case KindLogBatch:
		return d.logBatch(msg)
	case KindResultReady:
		return d.resultReady(msg)
	case KindRunFinished:
		return d.runFinished(msg)
	default:
		return Effects{}
	}
}

func (d *Dispatcher) logBatch(msg Message) Effects {
	// Fragments wholly behind the cursor are ignored outright, before the
	// merge engine sees them; the poll path shares the same invariant.
	if msg.NewOffset <= d.Transcript.Offset() {
		return Effects{}
	}
	applied := d.Transcript.Apply(msg.Content, msg.NewOffset)
	effects := Effects{Appended: applied.Suffix, Gap: applied.Gap}
	// A pushed status reflects real-time backend truth and overrides the
	// previously known value.
	if msg.Status != "" {
		effects.StatusChanged = d.Machine.Observe(msg.Status)
	}
	return effects
}

func (d *Dispatcher) resultReady(msg Message) Effects {
	if msg.Data == "" {
		return Effects{}
	}
	if d.OnResult != nil {
		d.OnResult(msg.Data, msg.Name)
	}
	return Effects{ResultUpdated: true}
}

func (d *Dispatcher) runFinished(msg Message) Effects {
	effects := Effects{Terminal: true}

	if msg.Status != "" {
		effects.StatusChanged = d.Machine.Observe(msg.Status)
	}
	if msg.ResultFileData != "" {
		if d.OnResult != nil {
			d.OnResult(msg.ResultFileData, msg.ResultFileName)
		}
		effects.ResultUpdated = true
	}
	if msg.Logs != "" {
		applied := d.Transcript.ApplyFull(msg.Logs)
		effects.Appended = applied.Suffix
		effects.Gap = applied.Gap
	}

	// The run is over even when no status value was carried: stop polling
	// and let the view drop into a terminal state.
	d.Machine.MarkTerminal()
	if d.Scheduler != nil {
		d.Scheduler.Disarm()
	}
	return effects
}
