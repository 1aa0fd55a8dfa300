// Package poll owns the bookkeeping for the log polling loop. The timer
// itself lives in the UI event loop (a tea.Tick); the scheduler decides
// whether a fired tick should poll and whether the timer re-arms, which
// keeps the lifecycle rules testable without any timers.
package poll

import "time"

// DefaultInterval is fast enough for perceived-live log tailing.
const DefaultInterval = 250 * time.Millisecond

// Decision tells the caller what to do with a fired tick.
type Decision struct {
	// Poll requests one log fragment starting at the current cursor.
	Poll bool
	// Rearm schedules the next tick. False after the single terminal poll.
	Rearm bool
}

// Scheduler tracks whether the polling timer is live. At most one timer
// exists per view: Arm reports false while already armed so callers never
// start a duplicate.
type Scheduler struct {
	interval time.Duration
	armed    bool
}

func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval}
}

// Interval returns the tick cadence.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Armed reports whether a timer is currently live.
func (s *Scheduler) Armed() bool { return s.armed }

// Arm marks the timer live and reports whether the caller should start it.
// A second Arm while live is a no-op.
func (s *Scheduler) Arm() bool {
	if s.armed {
		return false
	}
	s.armed = true
	return true
}

// Disarm cancels the timer. Safe to call when already disarmed.
func (s *Scheduler) Disarm() { s.armed = false }

// OnTick handles one fired tick. While the run is active every tick polls
// and re-arms. Once the run leaves the active state the tick issues exactly
// one more poll, to flush bytes produced around the stop transition, and
// the loop ends. Ticks fired after Disarm are ignored.
func (s *Scheduler) OnTick(active bool) Decision {
	if !s.armed {
		return Decision{}
	}
	if active {
		return Decision{Poll: true, Rearm: true}
	}
	s.armed = false
	return Decision{Poll: true}
}
