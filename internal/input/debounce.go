package input

import "time"

// State is the logical state of one input line.
type State int

const (
	StateIdle State = iota
	StatePressed
	StateDebouncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StateDebouncing:
		return "debouncing"
	default:
		return "unknown"
	}
}

// Debouncer turns sampled levels into discrete presses. After a press the
// line is ignored for window; once the window has elapsed the same sample
// is evaluated again, so a line held asserted presses once per window.
type Debouncer struct {
	window time.Duration
	state  State
	until  time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Sample feeds one reading taken at now and reports whether it is a press.
func (d *Debouncer) Sample(asserted bool, now time.Time) bool {
	if d.state == StateDebouncing {
		if now.Before(d.until) {
			return false
		}
		d.state = StateIdle
	}
	if !asserted {
		return false
	}

	d.state = StatePressed
	d.until = now.Add(d.window)
	d.state = StateDebouncing
	return true
}

func (d *Debouncer) State() State {
	return d.state
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}
