// Package input polls digital input lines and turns them into press events.
//
// An Adapter owns a set of lines, samples them on a fixed tick, debounces
// each one independently and pushes an Event per press onto a bounded
// channel. Forward consumes that channel and hands each press to the
// broadcast dispatcher, so debounce timing never waits on delivery.
//
// When the Capability says no input hardware is present the adapter logs
// once and does nothing; that is a normal mode, not an error.
package input

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keycast/keycast/internal/broadcast"
	"github.com/keycast/keycast/internal/metrics"
)

// ErrNoHardware is reported by Capability.Err when no input device exists.
var ErrNoHardware = errors.New("no input hardware present")

// Line is one sampled digital input.
type Line interface {
	Name() string
	Payload() string
	// Asserted reports whether the line is currently at its active level.
	Asserted() (bool, error)
	// Close releases the underlying device.
	Close() error
}

// Event is one debounced press.
type Event struct {
	Line    string
	Payload string
	At      time.Time
}

type Options struct {
	Capability   Capability
	PollInterval time.Duration
	EventBuffer  int
}

type binding struct {
	line      Line
	debouncer *Debouncer
	failing   bool // last read errored; logged once per failure streak
}

type Adapter struct {
	opts     Options
	bindings []*binding
	events   chan Event
	metrics  *metrics.Metrics
	now      func() time.Time

	dropped     int64
	lastDropLog time.Time
	closeOnce   sync.Once
}

func NewAdapter(opts Options, m *metrics.Metrics) *Adapter {
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Adapter{
		opts:    opts,
		events:  make(chan Event, opts.EventBuffer),
		metrics: m,
		now:     time.Now,
	}
}

// Add registers line with its own debounce window. Must be called before Run.
func (a *Adapter) Add(line Line, window time.Duration) {
	a.bindings = append(a.bindings, &binding{
		line:      line,
		debouncer: NewDebouncer(window),
	})
}

// Events is closed when Run returns.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

func (a *Adapter) Capability() Capability {
	return a.opts.Capability
}

// LineNames lists the registered lines in the order they were added.
func (a *Adapter) LineNames() []string {
	names := make([]string, len(a.bindings))
	for i, b := range a.bindings {
		names[i] = b.line.Name()
	}
	return names
}

// Run polls every line until ctx is cancelled, then closes the lines and
// the events channel. Without hardware it returns immediately.
func (a *Adapter) Run(ctx context.Context) {
	defer close(a.events)

	if !a.opts.Capability.Present {
		slog.Info("input hardware not present, button polling disabled", "reason", a.opts.Capability.Reason)
		a.closeLines()
		return
	}
	if len(a.bindings) == 0 {
		slog.Info("no input lines configured, button polling disabled")
		return
	}

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	slog.Info("input polling started", "lines", a.LineNames(), "interval", a.opts.PollInterval, "platform", a.opts.Capability.Platform)

	a.poll()
	for {
		select {
		case <-ctx.Done():
			a.closeLines()
			slog.Info("input polling stopped")
			return
		case <-ticker.C:
			a.poll()
		}
	}
}

func (a *Adapter) poll() {
	now := a.now()
	for _, b := range a.bindings {
		asserted, err := b.line.Asserted()
		if err != nil {
			if !b.failing {
				slog.Warn("input line read failed", "line", b.line.Name(), "error", err)
				b.failing = true
			}
			asserted = false
		} else {
			b.failing = false
		}

		if b.debouncer.Sample(asserted, now) {
			a.emit(Event{Line: b.line.Name(), Payload: b.line.Payload(), At: now})
		}
	}
}

// emit never blocks the poll loop. Dropped events are counted and logged
// at most once per 10 seconds.
func (a *Adapter) emit(ev Event) {
	select {
	case a.events <- ev:
		a.metrics.InputEvent(ev.Line)
		slog.Debug("input press", "line", ev.Line)
	default:
		a.dropped++
		a.metrics.InputDropped()
		now := a.now()
		if a.lastDropLog.IsZero() || now.Sub(a.lastDropLog) >= 10*time.Second {
			slog.Warn("input events dropped (forwarder behind)", "dropped", a.dropped)
			a.dropped = 0
			a.lastDropLog = now
		}
	}
}

// Close releases the lines of an adapter that will not be run. Run closes
// them itself on return.
func (a *Adapter) Close() {
	a.closeLines()
}

func (a *Adapter) closeLines() {
	a.closeOnce.Do(func() {
		for _, b := range a.bindings {
			if err := b.line.Close(); err != nil {
				slog.Warn("input line close failed", "line", b.line.Name(), "error", err)
			}
		}
	})
}

// Forward turns each event into a device-origin message and broadcasts it.
// It returns once events is closed.
func Forward(ctx context.Context, events <-chan Event, pub broadcast.Publisher) {
	for ev := range events {
		pub.Broadcast(ctx, broadcast.Message{
			Origin:  broadcast.OriginDevice,
			Payload: ev.Payload,
			Line:    ev.Line,
		})
	}
}
