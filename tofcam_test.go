package tofcam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etaoin/tofcam/internal/framer"
	"github.com/etaoin/tofcam/internal/singleton"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

func packet(fill byte) []byte {
	pkt := make([]byte, framer.PacketSize)
	pkt[0], pkt[1], pkt[2], pkt[3] = 0x00, 0xFF, 0x20, 0x27
	for i := framer.PayloadOffset; i < framer.PayloadOffset+framer.PayloadSize; i++ {
		pkt[i] = fill
	}
	return pkt
}

func TestStartWith_LatestStop_RoundTrip(t *testing.T) {
	singleton.Release()
	defer singleton.Release()

	port := transport.NewMock()
	port.BlockReads = true
	for i := 0; i < 4; i++ {
		port.Feed(packet(80))
	}
	opener := func(string, transport.Mode) (transport.Port, error) { return port, nil }

	require.NoError(t, singleton.Acquire(opener, DefaultParams(), telemetry.NopRecorder{}))
	require.NoError(t, StartWith("mock", DefaultParams(), telemetry.NopRecorder{}))
	defer Stop()

	frame := Latest(true)
	require.NotNil(t, frame)

	d, ok := Driver()
	require.True(t, ok)
	require.Eventually(t, func() bool { return d.FrameCounter() > 0 }, time.Second, time.Millisecond)
}

func TestStop_ReleasesSlotForFreshStart(t *testing.T) {
	singleton.Release()
	defer singleton.Release()

	port := transport.NewMock()
	port.BlockReads = true
	opener := func(string, transport.Mode) (transport.Port, error) { return port, nil }

	require.NoError(t, singleton.Acquire(opener, DefaultParams(), telemetry.NopRecorder{}))
	require.NoError(t, Start("mock"))
	require.NoError(t, Stop())

	_, ok := Driver()
	assert.False(t, ok)

	require.NoError(t, singleton.Acquire(opener, DefaultParams(), telemetry.NopRecorder{}))
	require.NoError(t, Start("mock"))
	require.NoError(t, Stop())
}
