// Package buffer implements the triple-buffered hand-off between the
// acquisition worker (producer) and client callers of Latest (consumer).
package buffer

import (
	"sync"
	"time"
)

const (
	// FrameSize is the byte length of one output frame: 10 000 little-
	// endian uint16 depth pixels.
	FrameSize = 20000

	slotCount = 3

	pollInterval = time.Millisecond
	pollBudget   = 500 * time.Millisecond
)

// Triple holds three fixed output frames and rotates which one the
// producer is filling, which is the latest complete frame, and which the
// consumer currently holds. Exactly one mutex guards the role pointers and
// the freshness counter; the backing byte slots are never guarded
// directly because the rotation protocol keeps fill, done, and lock from
// ever aliasing the same slot at the same time.
type Triple struct {
	mu sync.Mutex

	slots [slotCount][]byte

	fill int
	done int // -1 means no complete frame has been published yet
	lock int // -1 means the consumer has never latched a frame

	freshness int
}

// New returns a Triple with fill pointed at slot 0 and freshness seeded at
// -2, so the first two published frames are discarded as vendor-documented
// stale startup data.
func New() *Triple {
	t := &Triple{done: -1, lock: -1, freshness: -2}
	for i := range t.slots {
		t.slots[i] = make([]byte, FrameSize)
	}
	return t
}

// FillSlot returns the buffer the producer should write the next frame
// into. The caller must not retain it past the next Publish call.
func (t *Triple) FillSlot() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[t.fill]
}

// Publish marks the current fill slot complete and rotates fill to
// whichever remaining slot is neither the new done slot nor the currently
// locked slot, preferring the lowest-indexed candidate.
func (t *Triple) Publish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = t.fill
	t.freshness++

	for i := 0; i < slotCount; i++ {
		if i != t.done && i != t.lock {
			t.fill = i
			return
		}
	}
}

// Latest returns the most recently published frame. If no frame is ready
// and block is false, it returns (nil, false) immediately. If block is
// true and no frame is ready, it polls at 1ms intervals up to a 500ms
// budget before giving up. The returned slice is stable until the next
// call to Latest.
func (t *Triple) Latest(block bool) ([]byte, bool) {
	deadline := time.Now().Add(pollBudget)
	for {
		t.mu.Lock()
		if t.freshness > 0 {
			t.lock = t.done
			t.freshness = 0
			slot := t.slots[t.lock]
			t.mu.Unlock()
			return slot, true
		}
		t.mu.Unlock()

		if !block || time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(pollInterval)
	}
}

// Snapshot reports the current role assignment and freshness counter, for
// debug instrumentation and tests. -1 for done/lock means that role has
// never been assigned.
func (t *Triple) Snapshot() (fill, done, lock, freshness int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fill, t.done, t.lock, t.freshness
}
