//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DigitalReader reads the sensor from a GPIO line using the Linux GPIO character device.
type DigitalReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewDigitalReader requests the sensor line as an input with the configured bias.
func NewDigitalReader(cfg DigitalConfig) (*DigitalReader, error) {
	name := cfg.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, biasOption(cfg.Bias)}
	if cfg.ActiveLow {
		// Value() then reports the logical level directly.
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(cfg.Pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", cfg.Pin, err)
	}

	return &DigitalReader{chip: chip, line: line}, nil
}

// Read returns the logical state of the sensor line.
func (r *DigitalReader) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read sensor pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line and chip.
func (r *DigitalReader) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func biasOption(b Bias) gpiocdev.LineReqOption {
	switch b {
	case BiasPullUp:
		return gpiocdev.WithPullUp
	case BiasPullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// LineIndicator drives an LED (or any output) on a GPIO line.
type LineIndicator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	last int
}

// NewLineIndicator requests pin as an output, initially low.
func NewLineIndicator(chipName string, pin int) (*LineIndicator, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request indicator pin %d: %w", pin, err)
	}
	return &LineIndicator{chip: chip, line: line}, nil
}

// Set drives the line high (on) or low (off).
func (i *LineIndicator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if v == i.last {
		return nil
	}
	if err := i.line.SetValue(v); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	i.last = v
	return nil
}

// Close turns the indicator off and releases it as an input with pull-down
// (matching Pi boot defaults).
func (i *LineIndicator) Close() error {
	var errs []error
	if i.line != nil {
		if err := i.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear indicator: %w", err))
		}
		if err := i.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure indicator pin: %w", err))
		}
		if err := i.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indicator pin: %w", err))
		}
	}
	if i.chip != nil {
		if err := i.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
