// Package telemetry records driver control-loop events (auto-range
// decisions, step changes, stream-broken transitions) for offline
// analysis. It is a pure observer: nothing in the acquisition pipeline
// ever reads telemetry state back, and recording is best-effort so a slow
// or unavailable store never stalls the worker.
package telemetry

// Kind identifies the category of a recorded event.
type Kind string

const (
	KindAutoRange    Kind = "auto_range"
	KindStepChange   Kind = "step_change"
	KindStreamBroken Kind = "stream_broken"
)

// Event is one row of the control loop's observable history.
type Event struct {
	SessionID    string
	FrameCounter int
	Kind         Kind
	Step         int
	PendingStep  int
	MissPercent  int
	Detail       string
}

// Recorder accepts driver events. Implementations must not block the
// caller: Record should enqueue and return immediately, dropping the
// event if its internal queue is full.
type Recorder interface {
	Record(ev Event)
	Close() error
}

// NopRecorder discards every event. It is the default when no telemetry
// store is configured.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
func (NopRecorder) Close() error { return nil }
