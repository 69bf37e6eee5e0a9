// Package driver implements the acquisition state machine: it owns the
// transport, runs the single background worker that pulls the component
// pipeline (framer -> auto-range -> median -> temporal -> reformat ->
// triple buffer) together, and exposes the Start/Latest/Stop surface
// clients use.
package driver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/etaoin/tofcam/internal/autorange"
	"github.com/etaoin/tofcam/internal/buffer"
	"github.com/etaoin/tofcam/internal/framer"
	"github.com/etaoin/tofcam/internal/median"
	"github.com/etaoin/tofcam/internal/monitoring"
	"github.com/etaoin/tofcam/internal/reformat"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/temporal"
	"github.com/etaoin/tofcam/internal/transport"
)

// State is one position in the acquisition driver's lifecycle.
type State int

const (
	StateUninit State = iota
	StateOpening
	StateRunning
	StateStopping
	StateClosed
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Start when the driver is not in a
// startable state.
var ErrAlreadyRunning = errors.New("driver: already running")

const (
	startStep    = 2
	shutdownStep = 0
	joinDeadline = time.Second
	atSettleWait = 50 * time.Millisecond
	stopReadTimeout = 10 * time.Millisecond
)

// Params bundles the fixed tuning constants for one acquisition. Per the
// driver's non-goals these never change once Start has been called.
type Params struct {
	AutoRange     autorange.Params
	Temporal      temporal.Params
	VarLimit      int
	TransportMode transport.Mode
}

// DefaultParams returns the vendor-documented defaults for every
// component.
func DefaultParams() Params {
	return Params{
		AutoRange:     autorange.DefaultParams(),
		Temporal:      temporal.DefaultParams(),
		VarLimit:      reformat.DefaultVarLimit,
		TransportMode: transport.DefaultMode(),
	}
}

// Driver owns one acquisition's transport, worker goroutine, and output
// buffers.
type Driver struct {
	opener   transport.Opener
	params   Params
	recorder telemetry.Recorder
	lut      reformat.ScaleLUT

	mu    sync.Mutex
	state State
	port  transport.Port

	run sync.WaitGroup

	runFlag atomic.Bool

	buf            *buffer.Triple
	temporalFilter *temporal.Filter

	unit         atomic.Int64
	pend         atomic.Int64
	frameCounter atomic.Int64

	sessionID atomic.Value // string

	// Debug accessors are intentionally not guarded by mu: they mirror
	// the best-effort, racy debug pointers the original driver exposed,
	// now made data-race-free with a lock-free pointer swap instead of a
	// mutex.
	lastRaw    atomic.Pointer[[]byte]
	lastMedian atomic.Pointer[[]byte]
}

// New constructs a Driver. opener is used to open the transport when
// Start is called; recorder receives best-effort telemetry events (pass
// telemetry.NopRecorder{} to disable telemetry).
func New(opener transport.Opener, params Params, recorder telemetry.Recorder) *Driver {
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	d := &Driver{
		opener:   opener,
		params:   params,
		recorder: recorder,
		lut:      reformat.BuildScaleLUT(),
	}
	d.sessionID.Store("")
	return d
}

// Start opens the transport at path, performs the vendor handshake, and
// spawns the acquisition worker. On any failure the driver remains in
// StateUninit and the error is returned.
func (d *Driver) Start(path string) error {
	d.mu.Lock()
	if d.state != StateUninit && d.state != StateClosed && d.state != StateBroken {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.state = StateOpening
	d.mu.Unlock()

	port, err := d.opener(path, d.params.TransportMode)
	if err != nil {
		d.mu.Lock()
		d.state = StateUninit
		d.mu.Unlock()
		return fmt.Errorf("driver: open transport: %w", err)
	}

	if err := d.handshakeStart(port); err != nil {
		port.Close()
		d.mu.Lock()
		d.state = StateUninit
		d.mu.Unlock()
		return fmt.Errorf("driver: start handshake: %w", err)
	}

	d.buf = buffer.New()
	d.temporalFilter = temporal.New(d.params.Temporal)
	d.unit.Store(startStep)
	d.pend.Store(startStep)
	d.frameCounter.Store(0)
	d.sessionID.Store(uuid.NewString())
	d.runFlag.Store(true)

	d.mu.Lock()
	d.port = port
	d.state = StateRunning
	d.mu.Unlock()

	fr := framer.New(port)
	d.run.Add(1)
	go d.worker(fr, port)

	return nil
}

func (d *Driver) handshakeStart(port transport.Port) error {
	if _, err := port.Write([]byte("AT+DISP=3\r")); err != nil {
		return fmt.Errorf("write AT+DISP=3: %w", err)
	}
	time.Sleep(atSettleWait)
	if _, err := port.Write(autorange.UnitCommand(startStep)); err != nil {
		return fmt.Errorf("write AT+UNIT=%d: %w", startStep, err)
	}
	return nil
}

// worker runs for the lifetime of one acquisition: sync -> payload ->
// auto-range -> median -> temporal -> reformat -> publish, repeating
// until the framer reports a broken stream or Stop clears runFlag.
func (d *Driver) worker(fr *framer.Framer, port transport.Port) {
	defer d.run.Done()

	raw := make([]byte, framer.PayloadSize)
	med := make([]byte, median.Size)

	for d.runFlag.Load() {
		strays, err := fr.NextPayload(raw)
		if err != nil {
			d.markBroken(err)
			return
		}

		frameCounter := int(d.frameCounter.Load())
		unit := int(d.unit.Load())
		pend := int(d.pend.Load())

		if strays > 0 && frameCounter > 2 {
			d.temporalFilter.Rescale(unit, pend)
			unit = pend
			d.unit.Store(int64(unit))
			d.recorder.Record(telemetry.Event{
				SessionID:    d.SessionID(),
				FrameCounter: frameCounter,
				Kind:         telemetry.KindStepChange,
				Step:         unit,
				PendingStep:  pend,
			})
		}

		if frameCounter >= 2 {
			decision := autorange.Evaluate(raw, unit, pend, d.params.AutoRange)
			if decision.ShouldRequest {
				if _, err := port.Write(autorange.UnitCommand(decision.Goal)); err != nil {
					monitoring.ForSession(d.SessionID()).Frame(frameCounter, "failed to write step request: %v", err)
				} else {
					pend = decision.Goal
					d.pend.Store(int64(pend))
					d.recorder.Record(telemetry.Event{
						SessionID:    d.SessionID(),
						FrameCounter: frameCounter,
						Kind:         telemetry.KindAutoRange,
						Step:         unit,
						PendingStep:  pend,
						MissPercent:  decision.MissPercent,
					})
				}
			}
		}

		if err := median.Filter5x5(raw, med); err != nil {
			d.markBroken(fmt.Errorf("median filter: %w", err))
			return
		}
		if err := d.temporalFilter.Step(med); err != nil {
			d.markBroken(fmt.Errorf("temporal filter: %w", err))
			return
		}

		fill := d.buf.FillSlot()
		if err := reformat.Reformat(fill, raw, d.temporalFilter.Avg(), d.temporalFilter.Var(), &d.lut, unit, d.params.VarLimit); err != nil {
			d.markBroken(fmt.Errorf("reformat: %w", err))
			return
		}
		d.buf.Publish()

		rawCopy := append([]byte(nil), raw...)
		medCopy := append([]byte(nil), med...)
		d.lastRaw.Store(&rawCopy)
		d.lastMedian.Store(&medCopy)

		d.frameCounter.Store(int64(frameCounter + 1))
	}
}

func (d *Driver) markBroken(err error) {
	d.mu.Lock()
	d.state = StateBroken
	d.mu.Unlock()
	monitoring.ForSession(d.SessionID()).Frame(int(d.frameCounter.Load()), "worker exiting, %v", err)
	d.recorder.Record(telemetry.Event{
		SessionID:    d.SessionID(),
		FrameCounter: int(d.frameCounter.Load()),
		Kind:         telemetry.KindStreamBroken,
		Detail:       err.Error(),
	})
}

// Latest returns the most recently published frame, or nil if the driver
// is not running or no frame is ready. If block is true and none is
// ready yet, it polls briefly before giving up.
func (d *Driver) Latest(block bool) []byte {
	d.mu.Lock()
	healthy := d.state == StateRunning
	d.mu.Unlock()
	if !healthy {
		return nil
	}

	frame, ok := d.buf.Latest(block)
	if !ok {
		return nil
	}
	return frame
}

// Stop signals the worker to exit, waits up to a short deadline for it to
// do so, performs the shutdown handshake, and closes the transport. Stop
// is idempotent.
func (d *Driver) Stop() error {
	d.mu.Lock()
	switch d.state {
	case StateRunning, StateBroken:
		d.state = StateStopping
	default:
		d.mu.Unlock()
		return nil
	}
	port := d.port
	d.mu.Unlock()

	sessionLog := monitoring.ForSession(d.SessionID())

	d.runFlag.Store(false)
	if tp, ok := port.(transport.TimeoutPort); ok {
		if err := tp.SetReadTimeout(stopReadTimeout); err != nil {
			sessionLog.Logf("failed to shorten read timeout on stop: %v", err)
		}
	}

	waited := make(chan struct{})
	go func() {
		d.run.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(joinDeadline):
		sessionLog.Logf("worker join deadline exceeded, detaching")
	}

	if port != nil {
		if _, err := port.Write(autorange.UnitCommand(shutdownStep)); err != nil {
			sessionLog.Logf("failed to write shutdown AT+UNIT: %v", err)
		}
		time.Sleep(atSettleWait)
		if _, err := port.Write([]byte("AT+DISP=1\r")); err != nil {
			sessionLog.Logf("failed to write shutdown AT+DISP: %v", err)
		}
		if err := port.Close(); err != nil {
			sessionLog.Logf("failed to close transport: %v", err)
		}
	}

	d.mu.Lock()
	d.state = StateClosed
	d.port = nil
	d.mu.Unlock()
	return nil
}

// SendRawCommand writes cmd directly to the transport, bypassing the
// auto-range controller. It exists for the admin debug surface, which
// lets an operator push an arbitrary AT+... command by hand; it returns
// an error if the driver isn't running.
func (d *Driver) SendRawCommand(cmd []byte) error {
	d.mu.Lock()
	port := d.port
	healthy := d.state == StateRunning
	d.mu.Unlock()
	if !healthy || port == nil {
		return errors.New("driver: not running")
	}
	_, err := port.Write(cmd)
	return err
}

// State reports the driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Step returns the currently active depth step.
func (d *Driver) Step() int { return int(d.unit.Load()) }

// PendingStep returns the depth step most recently requested.
func (d *Driver) PendingStep() int { return int(d.pend.Load()) }

// FrameCounter returns the number of frames successfully published so
// far in this acquisition.
func (d *Driver) FrameCounter() int { return int(d.frameCounter.Load()) }

// SessionID returns the UUID minted by the most recent Start call, or ""
// if Start has never been called.
func (d *Driver) SessionID() string {
	v, _ := d.sessionID.Load().(string)
	return v
}

// DebugRaw returns the most recently captured raw payload, or nil before
// the first frame. The caller must treat it as a snapshot: the worker
// may already be writing a newer one underneath.
func (d *Driver) DebugRaw() []byte { return derefOrNil(d.lastRaw.Load()) }

// DebugMedian returns the most recently computed median frame.
func (d *Driver) DebugMedian() []byte { return derefOrNil(d.lastMedian.Load()) }

// DebugAvg returns the temporal filter's current running-mean buffer.
func (d *Driver) DebugAvg() []byte {
	if d.temporalFilter == nil {
		return nil
	}
	return d.temporalFilter.Avg()
}

// DebugVar returns the temporal filter's current running-variance
// buffer.
func (d *Driver) DebugVar() []byte {
	if d.temporalFilter == nil {
		return nil
	}
	return d.temporalFilter.Var()
}

func derefOrNil(p *[]byte) []byte {
	if p == nil {
		return nil
	}
	return *p
}
