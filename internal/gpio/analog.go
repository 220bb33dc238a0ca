package gpio

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AnalogReader samples an ADC channel exposed through the Linux IIO sysfs
// interface (e.g. /sys/bus/iio/devices/iio:device0/in_voltage5_raw) and
// compares it against a fixed threshold.
type AnalogReader struct {
	path      string
	threshold int
	invert    bool
	last      int
}

// NewAnalogReader checks that path is readable. A raw value above threshold
// is logical active; invert flips that.
func NewAnalogReader(path string, threshold int, invert bool) (*AnalogReader, error) {
	r := &AnalogReader{path: path, threshold: threshold, invert: invert}
	if _, err := r.readRaw(); err != nil {
		return nil, err
	}
	return r, nil
}

// Read returns whether the raw ADC value crosses the threshold.
func (r *AnalogReader) Read() (bool, error) {
	raw, err := r.readRaw()
	if err != nil {
		return false, err
	}
	r.last = raw
	return (raw > r.threshold) != r.invert, nil
}

// LastRaw returns the raw value of the most recent successful Read.
func (r *AnalogReader) LastRaw() int {
	return r.last
}

// Close is a no-op; the sysfs file is opened per read.
func (r *AnalogReader) Close() error {
	return nil
}

func (r *AnalogReader) readRaw() (int, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("read adc %s: %w", r.path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse adc value %q: %w", strings.TrimSpace(string(data)), err)
	}
	return v, nil
}
