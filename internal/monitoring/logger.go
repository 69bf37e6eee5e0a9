// Package monitoring provides the package-level diagnostic logger the
// rest of this module writes through, plus a thin wrapper that tags each
// line with the acquisition session and frame it came from.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Session tags every line it logs with an acquisition's session ID, the
// way the lidar background manager tags its own lines with a sensor ID
// (`monitoring.Logf("[BackgroundManager] ...", g.SensorID, ...)`). The
// driver holds one Session for the lifetime of an acquisition so a grep
// for one session ID in the log pulls out exactly that run, across
// restarts and overlapping acquisitions.
type Session struct {
	id string
}

// ForSession returns a Session tagging every line with sessionID.
func ForSession(sessionID string) Session {
	return Session{id: sessionID}
}

// Logf logs format/v through the package logger, prefixed with the
// session ID.
func (s Session) Logf(format string, v ...interface{}) {
	Logf("[session=%s] "+format, append([]interface{}{s.id}, v...)...)
}

// Frame logs format/v through the package logger, prefixed with the
// session ID and the frame counter the event occurred at. Use this for
// per-frame diagnostics (step requests, rescale events, broken streams)
// where knowing which frame triggered the line matters.
func (s Session) Frame(frameCounter int, format string, v ...interface{}) {
	Logf("[session=%s frame=%d] "+format, append([]interface{}{s.id, frameCounter}, v...)...)
}
