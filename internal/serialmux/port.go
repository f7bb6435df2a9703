package serialmux

import (
	"errors"
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// ErrReadOnly is returned when writing to a ReadOnlyPort.
var ErrReadOnly = errors.New("frame source is read-only")

// ReadOnlyPort adapts a read-only stream to SerialPorter.
type ReadOnlyPort struct {
	io.ReadCloser
}

func (p *ReadOnlyPort) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}
