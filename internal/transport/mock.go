package transport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// Mock implements Port with configurable behaviour for testing the framer
// and driver without real hardware. It gives fine-grained control over
// reads, writes, errors, and latency.
type Mock struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures every byte written to the port, in order. This
	// is how tests observe the AT+... commands the driver issues.
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay before each Read call returns.
	ReadLatency time.Duration

	// ReadError is returned once by the next Read call, then cleared.
	ReadError error

	// WriteError is returned once by the next Write call, then cleared.
	WriteError error

	Closed bool

	ReadCalls  int
	WriteCalls int

	readTimeout time.Duration

	// BlockReads makes Read wait for data (or Close, or its read
	// timeout) instead of returning zero bytes immediately, mirroring a
	// real serial port's VTIME-bounded blocking read.
	BlockReads bool

	notify chan struct{}
}

// NewMock returns an empty Mock ready for use, with a 1 second default
// read timeout matching transport.DefaultMode.
func NewMock() *Mock {
	return &Mock{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		readTimeout: time.Second,
		notify:      make(chan struct{}),
	}
}

func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	m.ReadCalls++

	if m.Closed {
		m.mu.Unlock()
		return 0, errors.New("transport: mock closed")
	}

	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		m.mu.Unlock()
		return 0, err
	}

	if m.ReadLatency > 0 {
		m.mu.Unlock()
		time.Sleep(m.ReadLatency)
		m.mu.Lock()
	}

	if m.BlockReads {
		for m.ReadBuffer.Len() == 0 && !m.Closed {
			ch := m.notify
			timeout := m.readTimeout
			m.mu.Unlock()

			select {
			case <-ch:
				m.mu.Lock()
			case <-time.After(timeout):
				// A real port with VTIME set returns (0, nil) on
				// timeout rather than blocking forever.
				return 0, nil
			}
		}
		if m.Closed {
			m.mu.Unlock()
			return 0, errors.New("transport: mock closed")
		}
	}

	if m.ReadBuffer.Len() == 0 {
		m.mu.Unlock()
		return 0, nil
	}

	n, err := m.ReadBuffer.Read(p)
	m.mu.Unlock()
	return n, err
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls++

	if m.Closed {
		return 0, errors.New("transport: mock closed")
	}

	if m.WriteError != nil {
		err := m.WriteError
		m.WriteError = nil
		return 0, err
	}

	return m.WriteBuffer.Write(p)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	m.wake()
	return nil
}

func (m *Mock) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = timeout
	// Re-arm any parked reader so the new timeout applies to it at once.
	m.wake()
	return nil
}

// Feed appends data to the read buffer and wakes any blocked reader.
func (m *Mock) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadBuffer.Write(data)
	m.wake()
}

// wake must be called with mu held. It releases every reader currently
// parked in the BlockReads wait loop.
func (m *Mock) wake() {
	close(m.notify)
	m.notify = make(chan struct{})
}

// Written returns a copy of every byte written to the port so far.
func (m *Mock) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.WriteBuffer.Len())
	copy(out, m.WriteBuffer.Bytes())
	return out
}
