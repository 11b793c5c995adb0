package input

import (
	"fmt"
	"log/slog"

	pshost "github.com/shirou/gopsutil/v3/host"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Capability records, once at startup, whether input lines can be sampled.
type Capability struct {
	Present   bool   `json:"present"`
	Reason    string `json:"reason,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Err returns ErrNoHardware when the capability is absent.
func (c Capability) Err() error {
	if c.Present {
		return nil
	}
	if c.Reason == "" {
		return ErrNoHardware
	}
	return fmt.Errorf("%w: %s", ErrNoHardware, c.Reason)
}

// NoHardware is the capability of a machine without input lines.
func NoHardware(reason string) Capability {
	return Capability{Reason: reason, Platform: platform()}
}

// Simulated is the capability used when lines are driven in software.
func Simulated() Capability {
	return Capability{Present: true, Simulated: true, Platform: platform()}
}

// DetectHardware initialises the GPIO host drivers and reports whether any
// pins were registered. It never fails; a missing driver is reported as an
// absent capability.
func DetectHardware() Capability {
	state, err := host.Init()
	if err != nil {
		return NoHardware(fmt.Sprintf("gpio host init: %v", err))
	}
	for _, f := range state.Failed {
		slog.Debug("gpio driver failed to load", "driver", f.D.String(), "error", f.Err)
	}

	if len(gpioreg.All()) == 0 {
		return NoHardware("no GPIO pins registered on this host")
	}
	return Capability{Present: true, Platform: platform()}
}

func platform() string {
	info, err := pshost.Info()
	if err != nil {
		return "unknown"
	}
	if info.Platform == "" {
		return fmt.Sprintf("%s/%s", info.OS, info.KernelArch)
	}
	return fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch)
}
