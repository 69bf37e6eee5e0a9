// Package singleton provides a process-wide slot holding at most one live
// driver.Driver. It exists for the flat-API adapter shape described in
// SPEC_FULL.md §4.9: a future cgo (or other foreign-function) shim has no
// good way to carry a Go handle across the boundary, so it needs a single
// well-known place to find "the" driver, with strict init-once /
// teardown-once semantics so two callers can never race onto the same
// serial device. This mirrors tof_cam.cpp's single static jhcTofCam
// instance wrapped by the flat C API.
package singleton

import (
	"errors"
	"sync"

	"github.com/etaoin/tofcam/internal/driver"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

// ErrAlreadyAcquired is returned by Acquire when a driver is already live
// in this slot.
var ErrAlreadyAcquired = errors.New("singleton: a driver is already acquired")

// ErrNotAcquired is returned by Start when no driver has been acquired
// yet. Latest and Stop return nil in that case instead.
var ErrNotAcquired = errors.New("singleton: no driver acquired")

// Slot holds at most one live driver.Driver.
type Slot struct {
	mu sync.Mutex
	d  *driver.Driver
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Acquire constructs a new driver and stores it in the slot. It fails if
// a driver is already acquired; the caller must Release first.
func (s *Slot) Acquire(opener transport.Opener, params driver.Params, recorder telemetry.Recorder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.d != nil {
		return ErrAlreadyAcquired
	}
	s.d = driver.New(opener, params, recorder)
	return nil
}

// Release drops the slot's driver reference. It does not call Stop; the
// caller is responsible for stopping the driver first if it was started.
// A subsequent Acquire is allowed and creates a fresh driver.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = nil
}

func (s *Slot) get() (*driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d == nil {
		return nil, ErrNotAcquired
	}
	return s.d, nil
}

// Start delegates to the acquired driver's Start.
func (s *Slot) Start(path string) error {
	d, err := s.get()
	if err != nil {
		return err
	}
	return d.Start(path)
}

// Latest delegates to the acquired driver's Latest, returning nil if no
// driver is acquired.
func (s *Slot) Latest(block bool) []byte {
	d, err := s.get()
	if err != nil {
		return nil
	}
	return d.Latest(block)
}

// Stop delegates to the acquired driver's Stop. It is a no-op if no
// driver is acquired.
func (s *Slot) Stop() error {
	d, err := s.get()
	if err != nil {
		return nil
	}
	return d.Stop()
}

// Driver returns the currently acquired driver, if any, for callers that
// need the full surface (debug accessors, State, etc).
func (s *Slot) Driver() (*driver.Driver, bool) {
	d, err := s.get()
	return d, err == nil
}

// Default is the process-wide slot used by package-level convenience
// functions, analogous to tof_cam.cpp's single static jhcTofCam instance.
var Default = NewSlot()

func Acquire(opener transport.Opener, params driver.Params, recorder telemetry.Recorder) error {
	return Default.Acquire(opener, params, recorder)
}

func Release() { Default.Release() }

func Start(path string) error { return Default.Start(path) }

func Latest(block bool) []byte { return Default.Latest(block) }

func Stop() error { return Default.Stop() }
