//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// DigitalReader is not available on non-Linux platforms.
type DigitalReader struct{}

// NewDigitalReader returns an error on non-Linux platforms.
func NewDigitalReader(DigitalConfig) (*DigitalReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *DigitalReader) Read() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *DigitalReader) Close() error {
	return nil
}

// LineIndicator is not available on non-Linux platforms.
type LineIndicator struct{}

// NewLineIndicator returns an error on non-Linux platforms.
func NewLineIndicator(string, int) (*LineIndicator, error) {
	return nil, errUnsupported
}

func (i *LineIndicator) Set(bool) error { return errUnsupported }
func (i *LineIndicator) Close() error   { return nil }
