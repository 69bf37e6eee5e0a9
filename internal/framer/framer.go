// Package framer implements the packetization state machine that turns the
// depth camera's raw serial byte stream into 10 000-byte raw pixel
// payloads, synchronizing on the device's fixed four-byte packet prefix.
package framer

import (
	"errors"
	"fmt"

	"github.com/etaoin/tofcam/internal/transport"
)

const (
	// PacketSize is the full wire packet: a 16-byte preamble (2-byte sync,
	// 2-byte length, 12-byte opaque header), the 10 000-byte payload, and
	// a 2-byte trailer.
	PacketSize = 10018

	// PayloadSize is the number of raw pixel bytes per frame (100x100).
	PayloadSize = 10000

	// PayloadOffset is where the pixel payload begins within a packet,
	// counted from the leading 0x00 sync byte.
	PayloadOffset = 16

	// syncSearchBudget bounds how many stray bytes the framer will discard
	// while hunting for the next valid packet prefix before giving up.
	syncSearchBudget = 20000

	readChunkSize = 4096
)

// syncPrefix is the fixed four-byte packet header: sync bytes 0x00 0xFF
// followed by the little-endian packet length 10016 (0x2720).
var syncPrefix = [4]byte{0x00, 0xFF, 0x20, 0x27}

// ErrStreamBroken indicates the framer could not locate or complete a
// packet: either the transport's read timed out (returned zero bytes) or
// the sync search budget was exhausted without finding a valid prefix.
var ErrStreamBroken = errors.New("framer: stream broken")

// Framer turns a transport.Port's byte stream into raw frame payloads.
type Framer struct {
	src *byteSource
}

// New wraps port in a Framer.
func New(port transport.Port) *Framer {
	return &Framer{src: newByteSource(port)}
}

// NextPayload scans for the next packet prefix, reads the rest of the
// packet, and copies its 10 000-byte pixel payload into payload (which
// must be exactly PayloadSize long). It returns the number of stray bytes
// that were discarded while searching for the prefix; any non-zero count
// is the driver's signal that the device emitted a command acknowledgement
// since the previous frame.
func (f *Framer) NextPayload(payload []byte) (strays int, err error) {
	if len(payload) != PayloadSize {
		return 0, fmt.Errorf("framer: payload buffer must be %d bytes, got %d", PayloadSize, len(payload))
	}

	strays, err = f.sync()
	if err != nil {
		return strays, err
	}

	var pkt [PacketSize]byte
	copy(pkt[:len(syncPrefix)], syncPrefix[:])
	if err := f.src.read(pkt[len(syncPrefix):]); err != nil {
		return strays, err
	}

	copy(payload, pkt[PayloadOffset:PayloadOffset+PayloadSize])
	return strays, nil
}

// sync scans the byte stream for the four-byte packet prefix, returning
// the number of bytes discarded before it was found.
func (f *Framer) sync() (strays int, err error) {
	state := 0
	for {
		if strays > syncSearchBudget {
			return strays, ErrStreamBroken
		}

		b, err := f.src.nextByte()
		if err != nil {
			return strays, err
		}

		if b == syncPrefix[state] {
			state++
			if state == len(syncPrefix) {
				return strays, nil
			}
			continue
		}

		// The bytes of the abandoned partial match are discarded too.
		strays += state
		state = 0
		// The byte that broke the match might itself start a fresh match.
		if b == syncPrefix[0] {
			state = 1
		} else {
			strays++
		}
	}
}

// byteSource buffers reads from a transport.Port so sync() can scan one
// byte at a time cheaply while read() can still satisfy bulk requests
// (the rest of a packet) from the same underlying stream.
type byteSource struct {
	port transport.Port
	buf  [readChunkSize]byte
	pos  int
	n    int
}

func newByteSource(port transport.Port) *byteSource {
	return &byteSource{port: port}
}

// fill issues exactly one Read against the underlying transport. A read
// that returns zero bytes with no error means the transport's blocking
// read timed out, which the framer treats as a broken stream rather than
// retrying indefinitely.
func (s *byteSource) fill() error {
	n, err := s.port.Read(s.buf[:])
	if err != nil {
		return fmt.Errorf("framer: transport read: %w", err)
	}
	if n == 0 {
		return ErrStreamBroken
	}
	s.pos, s.n = 0, n
	return nil
}

func (s *byteSource) nextByte() (byte, error) {
	if s.pos >= s.n {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// read fills p completely, issuing as many underlying reads as needed.
func (s *byteSource) read(p []byte) error {
	i := 0
	for i < len(p) {
		if s.pos < s.n {
			k := copy(p[i:], s.buf[s.pos:s.n])
			s.pos += k
			i += k
			continue
		}
		if err := s.fill(); err != nil {
			return err
		}
	}
	return nil
}
