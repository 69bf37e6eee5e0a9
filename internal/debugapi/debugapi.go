// Package debugapi attaches an operator-facing /debug/tofcam/ admin
// surface to an existing HTTP mux, the same way the other serial-attached
// device in this codebase exposes its own admin routes under /debug/.
package debugapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/etaoin/tofcam/internal/driver"
)

// StateView is the JSON shape served by GET /debug/tofcam/state.
type StateView struct {
	State        string `json:"state"`
	Step         int    `json:"step"`
	PendingStep  int    `json:"pending_step"`
	FrameCounter int    `json:"frame_counter"`
	SessionID    string `json:"session_id"`
	Healthy      bool   `json:"healthy"`
}

// AttachAdminRoutes mounts the debug surface for d on mux under /debug/,
// guarded by tsweb's default localhost/Tailscale-only access check.
func AttachAdminRoutes(mux *http.ServeMux, d *driver.Driver) {
	debug := tsweb.Debugger(mux)

	debug.Handle("tofcam/state", "acquisition driver state snapshot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := StateView{
			State:        d.State().String(),
			Step:         d.Step(),
			PendingStep:  d.PendingStep(),
			FrameCounter: d.FrameCounter(),
			SessionID:    d.SessionID(),
			Healthy:      d.State() == driver.StateRunning,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode state: %v", err), http.StatusInternalServerError)
		}
	}))

	debug.HandleFunc("tofcam/raw", "dump the most recent raw payload", dumpHandler(func() []byte { return d.DebugRaw() }))
	debug.HandleFunc("tofcam/median", "dump the most recent median frame", dumpHandler(func() []byte { return d.DebugMedian() }))
	debug.HandleFunc("tofcam/avg", "dump the temporal filter's running mean", dumpHandler(func() []byte { return d.DebugAvg() }))
	debug.HandleFunc("tofcam/var", "dump the temporal filter's running variance", dumpHandler(func() []byte { return d.DebugVar() }))

	debug.Handle("tofcam/send-command", "send an AT+... command to the sensor", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if !strings.HasSuffix(command, "\r") {
			command += "\r"
		}
		if err := d.SendRawCommand([]byte(command)); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to sensor\n", command)
	}))
}

// dumpHandler serves a raw debug buffer as application/octet-stream, or
// 503 if no frame has been captured yet. These endpoints are for local
// operator inspection only and are gated by tsweb's debug access check,
// never exposed publicly, same as the raw/median buffers they dump.
func dumpHandler(get func() []byte) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		buf := get()
		if buf == nil {
			http.Error(w, "no frame captured yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(buf)
	}
}
