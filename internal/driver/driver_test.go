package driver

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etaoin/tofcam/internal/framer"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

func packet(payloadFill byte) []byte {
	pkt := make([]byte, framer.PacketSize)
	pkt[0], pkt[1], pkt[2], pkt[3] = 0x00, 0xFF, 0x20, 0x27
	for i := framer.PayloadOffset; i < framer.PayloadOffset+framer.PayloadSize; i++ {
		pkt[i] = payloadFill
	}
	return pkt
}

func packetWithPixel(base byte, x, y int, v byte) []byte {
	pkt := packet(base)
	pkt[framer.PayloadOffset+y*100+x] = v
	return pkt
}

func newTestDriver(port *transport.Mock) *Driver {
	opener := func(string, transport.Mode) (transport.Port, error) {
		return port, nil
	}
	return New(opener, DefaultParams(), telemetry.NopRecorder{})
}

func TestDriver_S1_ColdStartDiscardsFirstTwoFrames(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true
	for i := 0; i < 5; i++ {
		port.Feed(packet(80))
	}

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	frame := d.Latest(true)
	require.NotNil(t, frame)

	want := uint16(4 * 2 * 80)
	for i := 0; i < len(frame)/2; i++ {
		got := binary.LittleEndian.Uint16(frame[i*2 : i*2+2])
		assert.Equalf(t, want, got, "pixel %d", i)
	}
}

func TestDriver_S2_SaturatedPixelIsMaskedNeighboursUnaffected(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true
	for i := 0; i < 4; i++ {
		port.Feed(packetWithPixel(80, 50, 50, 255))
	}

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	frame := d.Latest(true)
	require.NotNil(t, frame)

	idx := 50*100 + 50
	assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(frame[idx*2:idx*2+2]))
	// The 5x5 median outvotes the lone 255, so the pixel beside it keeps 4*2*80.
	assert.Equal(t, uint16(4*2*80), binary.LittleEndian.Uint16(frame[(idx+1)*2:(idx+1)*2+2]))
}

func TestDriver_S3_AutoRangeIssuesSingleCommand(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true
	// A central ROI value of 30 with unit=2, ihi=150 -> goal = 1.
	for i := 0; i < 4; i++ {
		port.Feed(packet(30))
	}

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.FrameCounter() >= 3
	}, time.Second, time.Millisecond)

	written := string(port.Written())
	assert.Equal(t, 1, strings.Count(written, "AT+UNIT=1\r"))
	assert.Equal(t, 1, d.PendingStep())
}

func TestDriver_S4_StepAckTriggersRescale(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true
	// Frames 0-3: a constant ROI of 80 makes the auto-range controller
	// request step 1 on frame index 2 (the third frame, once
	// frameCounter >= 2) and then settle, since its own request is
	// already pending.
	for i := 0; i < 4; i++ {
		port.Feed(packet(80))
	}
	// A stray byte run (the vendor ack) before a 5th frame, now that
	// frameCounter > 2 and a step request is in flight.
	port.Feed([]byte{0x11, 0x22, 0x33})
	port.Feed(packet(80))

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.FrameCounter() >= 5
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, d.Step())
	assert.Equal(t, 1, d.PendingStep())
}

func TestDriver_S5_BrokenStreamUnblocksLatestAndStopDoesNotDeadlock(t *testing.T) {
	port := transport.NewMock()
	// No data fed and BlockReads left false: every Read returns (0, nil),
	// which the framer treats as a broken stream on the very first call.

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))

	start := time.Now()
	frame := d.Latest(true)
	assert.Nil(t, frame)
	assert.Less(t, time.Since(start), 600*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked after a broken stream")
	}

	assert.Equal(t, StateClosed, d.State())
}

func TestDriver_S6_TripleBufferRolesStayDisjoint(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true
	for i := 0; i < 6; i++ {
		port.Feed(packet(80))
	}

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.FrameCounter() >= 3
	}, time.Second, time.Millisecond)

	fill, done, lock, _ := d.buf.Snapshot()
	assert.NotEqual(t, fill, lock)
	if done != -1 {
		assert.NotEqual(t, fill, done)
	}

	frame := d.Latest(true)
	require.NotNil(t, frame)

	fill, done, lock, _ = d.buf.Snapshot()
	assert.NotEqual(t, fill, lock)
	assert.NotEqual(t, fill, done)
}

func TestDriver_StartRejectsSecondConcurrentStart(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	assert.ErrorIs(t, d.Start("mock"), ErrAlreadyRunning)
}

func TestDriver_StopIsIdempotent(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.Equal(t, StateClosed, d.State())
}

func TestDriver_LatestNonBlockingWithoutDataReturnsNil(t *testing.T) {
	port := transport.NewMock()
	port.BlockReads = true

	d := newTestDriver(port)
	require.NoError(t, d.Start("mock"))
	defer d.Stop()

	assert.Nil(t, d.Latest(false))
}

func TestDriver_OpenFailureLeavesStateUninit(t *testing.T) {
	wantErr := assert.AnError
	opener := func(string, transport.Mode) (transport.Port, error) {
		return nil, wantErr
	}
	d := New(opener, DefaultParams(), telemetry.NopRecorder{})

	err := d.Start("mock")
	assert.Error(t, err)
	assert.Equal(t, StateUninit, d.State())
}
