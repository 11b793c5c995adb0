package input

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/keycast/keycast/internal/config"
)

// GPIOLine samples one pin through periph.io. Call DetectHardware first so
// the host drivers are loaded.
type GPIOLine struct {
	name    string
	payload string
	pin     gpio.PinIO
	active  gpio.Level
}

func OpenGPIO(lc config.LineConfig) (*GPIOLine, error) {
	pin := gpioreg.ByName(lc.Pin)
	if pin == nil {
		return nil, fmt.Errorf("line %s: gpio pin %q not found", lc.Name, lc.Pin)
	}

	pull, err := parsePull(lc.Pull)
	if err != nil {
		return nil, fmt.Errorf("line %s: %w", lc.Name, err)
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("line %s: configure %s as input: %w", lc.Name, lc.Pin, err)
	}

	return &GPIOLine{
		name:    lc.Name,
		payload: lc.Payload,
		pin:     pin,
		active:  activeLevel(lc.Active),
	}, nil
}

func (l *GPIOLine) Name() string    { return l.name }
func (l *GPIOLine) Payload() string { return l.payload }

func (l *GPIOLine) Asserted() (bool, error) {
	return l.pin.Read() == l.active, nil
}

func (l *GPIOLine) Close() error {
	return l.pin.Halt()
}

func (l *GPIOLine) String() string {
	return fmt.Sprintf("%s(%s)", l.name, l.pin.Name())
}

func parsePull(s string) (gpio.Pull, error) {
	switch s {
	case "up", "":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	case "none":
		return gpio.Float, nil
	default:
		return gpio.PullNoChange, fmt.Errorf("unknown pull mode %q", s)
	}
}

func activeLevel(s string) gpio.Level {
	if s == "high" {
		return gpio.High
	}
	return gpio.Low
}
