package input

import (
	"fmt"
	"time"

	"github.com/keycast/keycast/internal/config"
	"github.com/keycast/keycast/internal/metrics"
)

// Build opens the configured lines for capab and returns a ready adapter.
// Simulated capabilities get SimulatedLines; absent hardware gets an
// adapter with no lines. A pin that cannot be opened on real hardware is
// a configuration error.
func Build(cfg config.InputConfig, capab Capability, m *metrics.Metrics) (*Adapter, error) {
	a := NewAdapter(Options{
		Capability:   capab,
		PollInterval: cfg.PollInterval,
		EventBuffer:  cfg.EventBuffer,
	}, m)

	if !capab.Present {
		return a, nil
	}

	var opened []Line
	for i, lc := range cfg.Lines {
		window := lc.DebounceWindow
		if window <= 0 {
			window = cfg.DebounceWindow
		}

		var line Line
		if capab.Simulated {
			line = NewSimulatedLine(lc.Name, lc.Payload, time.Now().UnixNano()+int64(i))
		} else {
			gl, err := OpenGPIO(lc)
			if err != nil {
				for _, l := range opened {
					l.Close()
				}
				return nil, fmt.Errorf("open input lines: %w", err)
			}
			line = gl
		}
		opened = append(opened, line)
		a.Add(line, window)
	}
	return a, nil
}
