package audio

import "time"

// DetectorState is the state of a SilenceDetector
type DetectorState int

const (
	StateActive DetectorState = iota // Non-silent, or just started
	StateSilent                      // Inside a silent run
)

func (s DetectorState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSilent:
		return "silent"
	}
	return "unknown"
}

// SilenceDetector turns a stream of readings into segment boundary events.
// A boundary fires each time a silent run outlasts the configured duration;
// the run timer then restarts while the run itself continues, so one long
// pause can close several segments.
type SilenceDetector struct {
	duration   time.Duration
	state      DetectorState
	since      time.Time
	boundaries int
}

// NewSilenceDetector creates a detector that fires after duration of silence
func NewSilenceDetector(duration time.Duration) *SilenceDetector {
	return &SilenceDetector{
		duration: duration,
		state:    StateActive,
	}
}

// Observe processes one reading and reports whether a boundary fired
func (d *SilenceDetector) Observe(r Reading) bool {
	if !r.Silent {
		d.state = StateActive
		d.since = time.Time{}
		return false
	}

	if d.state == StateActive {
		d.state = StateSilent
		d.since = r.At
		return false
	}

	if r.At.Sub(d.since) > d.duration {
		d.since = r.At
		d.boundaries++
		return true
	}

	return false
}

// State returns the current detector state
func (d *SilenceDetector) State() DetectorState {
	return d.state
}

// Boundaries returns how many boundary events have fired
func (d *SilenceDetector) Boundaries() int {
	return d.boundaries
}
