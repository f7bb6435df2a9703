package serialmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial device at path and wraps it in a
// SerialMux.
func NewRealSerialMux(path string, opts PortOptions, muxOpts ...Option) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port, muxOpts...), nil
}

// NewReaderSerialMux wraps a read-only stream, such as a recorded file or
// stdin, in a SerialMux. Commands sent to it fail with ErrReadOnly.
func NewReaderSerialMux(r io.ReadCloser, muxOpts ...Option) *SerialMux[*ReadOnlyPort] {
	return NewSerialMux(&ReadOnlyPort{ReadCloser: r}, muxOpts...)
}
