// Package transport abstracts the full-duplex byte link the depth camera
// speaks over: a fixed-baud 8-N-1 USB serial connection with a blocking
// read timeout. It exists so the framer and driver never import
// go.bug.st/serial directly and can be exercised against a mock in tests.
package transport

import (
	"io"
	"time"
)

// Port is the minimal interface a transport must satisfy. This abstraction
// enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Parity enumerates the serial parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits enumerates the serial stop-bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// Mode describes the serial connection parameters.
type Mode struct {
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    StopBits
	ReadTimeout time.Duration
}

// DefaultMode returns the mode the sensor requires: 115200 baud, 8-N-1,
// with a 1 second read timeout so a read on a quiet device returns zero
// bytes instead of blocking forever (the framer reports that as a broken
// stream).
func DefaultMode() Mode {
	return Mode{
		BaudRate:    115200,
		DataBits:    8,
		Parity:      NoParity,
		StopBits:    OneStopBit,
		ReadTimeout: time.Second,
	}
}

// TimeoutPort is the optional interface a Port may implement to have its
// read timeout adjusted after opening, e.g. to shorten it during Stop so a
// blocked Read unblocks faster.
type TimeoutPort interface {
	Port
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a transport at the given path with the given mode. Swapping
// this out in tests avoids touching real hardware.
type Opener func(path string, mode Mode) (Port, error)
