package debugapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etaoin/tofcam/internal/driver"
	"github.com/etaoin/tofcam/internal/framer"
	"github.com/etaoin/tofcam/internal/telemetry"
	"github.com/etaoin/tofcam/internal/transport"
)

// loopbackRequest builds a request tsweb's debug-access check will allow,
// mirroring the pattern this codebase already uses for its other
// admin-route tests.
func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func packet(fill byte) []byte {
	pkt := make([]byte, framer.PacketSize)
	pkt[0], pkt[1], pkt[2], pkt[3] = 0x00, 0xFF, 0x20, 0x27
	for i := framer.PayloadOffset; i < framer.PayloadOffset+framer.PayloadSize; i++ {
		pkt[i] = fill
	}
	return pkt
}

func newRunningDriver(t *testing.T) (*driver.Driver, *transport.Mock) {
	t.Helper()
	port := transport.NewMock()
	port.BlockReads = true
	for i := 0; i < 3; i++ {
		port.Feed(packet(80))
	}
	opener := func(string, transport.Mode) (transport.Port, error) { return port, nil }
	d := driver.New(opener, driver.DefaultParams(), telemetry.NopRecorder{})
	require.NoError(t, d.Start("mock"))
	t.Cleanup(func() { d.Stop() })
	require.Eventually(t, func() bool { return d.FrameCounter() >= 2 }, time.Second, time.Millisecond)
	return d, port
}

func TestAttachAdminRoutes_StateEndpoint(t *testing.T) {
	d, _ := newRunningDriver(t)
	require.Eventually(t, func() bool { return d.FrameCounter() >= 1 }, time.Second, time.Millisecond)

	mux := http.NewServeMux()
	AttachAdminRoutes(mux, d)

	req := loopbackRequest(http.MethodGet, "/debug/tofcam/state")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var view StateView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "running", view.State)
	assert.True(t, view.Healthy)
}

func TestAttachAdminRoutes_RawEndpointServesOctetStream(t *testing.T) {
	d, _ := newRunningDriver(t)

	mux := http.NewServeMux()
	AttachAdminRoutes(mux, d)

	req := loopbackRequest(http.MethodGet, "/debug/tofcam/raw")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestAttachAdminRoutes_SendCommandWritesToTransport(t *testing.T) {
	d, port := newRunningDriver(t)

	mux := http.NewServeMux()
	AttachAdminRoutes(mux, d)

	form := httptest.NewRequest(http.MethodPost, "/debug/tofcam/send-command", nil)
	form.RemoteAddr = "127.0.0.1:12345"
	form.Form = map[string][]string{"command": {"AT+UNIT=3"}}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, form)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(port.Written()), "AT+UNIT=3\r")
}

func TestAttachAdminRoutes_SendCommandRejectsGet(t *testing.T) {
	d, _ := newRunningDriver(t)

	mux := http.NewServeMux()
	AttachAdminRoutes(mux, d)

	req := loopbackRequest(http.MethodGet, "/debug/tofcam/send-command")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
