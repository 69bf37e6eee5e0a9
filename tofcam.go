// Package tofcam is the public flat API for the ToF depth camera driver:
// Start, Latest, and Stop against the process-wide driver slot, the same
// three-call surface the vendor's own C library exposed around its single
// static jhcTofCam instance.
package tofcam

import (
	"github.com/etaoin/tofcam/internal/driver"
	"github.com/etaoin/tofcam/internal/singleton"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

// Params re-exports the driver's tuning parameters so callers never need
// to import internal/driver directly.
type Params = driver.Params

// DefaultParams returns the vendor-documented defaults.
func DefaultParams() Params { return driver.DefaultParams() }

// Recorder re-exports the telemetry sink interface.
type Recorder = telemetry.Recorder

// Start acquires a fresh driver against the process-wide slot (if one
// isn't already live), using the real serial opener and DefaultParams,
// and opens the transport at path. If the slot already holds a driver,
// Start starts that driver instead.
//
// Calling Start again while the driver is running returns
// driver.ErrAlreadyRunning.
func Start(path string) error {
	if _, ok := singleton.Default.Driver(); !ok {
		if err := singleton.Acquire(transport.OpenSerial, DefaultParams(), telemetry.NopRecorder{}); err != nil {
			return err
		}
	}
	return singleton.Start(path)
}

// StartWith is like Start but lets the caller override the tuning
// parameters and telemetry recorder, e.g. to point at a SQLite-backed
// store opened with telemetry.OpenSQLite.
func StartWith(path string, params Params, recorder Recorder) error {
	if _, ok := singleton.Default.Driver(); !ok {
		if err := singleton.Acquire(transport.OpenSerial, params, recorder); err != nil {
			return err
		}
	}
	return singleton.Start(path)
}

// Latest returns the most recently published 20 000-byte frame, or nil if
// none is ready.
func Latest(block bool) []byte { return singleton.Latest(block) }

// Stop halts acquisition and releases the process-wide slot so a
// subsequent Start creates a fresh driver.
func Stop() error {
	err := singleton.Stop()
	singleton.Release()
	return err
}

// Driver exposes the full driver surface (state, debug accessors) for
// callers that need more than Start/Latest/Stop, such as the debug HTTP
// admin routes.
func Driver() (*driver.Driver, bool) { return singleton.Default.Driver() }
