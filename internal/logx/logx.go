// Package logx carries small helpers for annotating loggers with
// orchestration identifiers.
package logx

import (
	"pkt.systems/pslog"
	"pkt.systems/webmux/schema"
)

// WithWindow annotates the logger with the window partition id.
func WithWindow(log pslog.Logger, windowID schema.WindowID) pslog.Logger {
	if windowID != "" {
		log = log.With("window", windowID)
	}
	return log
}

// WithSession annotates the logger with a session id.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithRequest annotates the logger with a request correlation id.
func WithRequest(log pslog.Logger, requestID schema.RequestID) pslog.Logger {
	if requestID != "" {
		log = log.With("request", requestID)
	}
	return log
}
