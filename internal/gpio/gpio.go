// Package gpio provides sensor sampling and indicator output with hardware abstraction.
// The real implementations use the Linux GPIO character device and IIO sysfs.
// The fake implementations allow testing without hardware.
package gpio

import "fmt"

// Reader samples the sensor.
type Reader interface {
	// Read returns the logical "active" state of the sensor
	// (locked for a lock sensor, open for a door sensor).
	Read() (bool, error)

	// Close releases hardware resources.
	Close() error
}

// Indicator is a boolean-level output driven once per tick.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// Bias selects the internal pull resistor on a digital input.
type Bias string

const (
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// ParseBias validates a bias string from config.
func ParseBias(s string) (Bias, error) {
	switch Bias(s) {
	case BiasPullUp, BiasPullDown, BiasDisabled:
		return Bias(s), nil
	}
	return "", fmt.Errorf("unknown bias %q", s)
}

// Defaults (BCM numbering)
const (
	DefaultChip         = "gpiochip0"
	DefaultPinSensor    = 17
	DefaultPinIndicator = 27
)

// DigitalConfig describes a digital sensor line.
type DigitalConfig struct {
	Chip      string
	Pin       int
	Bias      Bias
	ActiveLow bool // raw low = logical active
}

// NopIndicator discards all output. Used when no indicator pin is configured.
type NopIndicator struct{}

func (NopIndicator) Set(bool) error { return nil }
func (NopIndicator) Close() error   { return nil }
