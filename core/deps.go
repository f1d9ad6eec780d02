package core

import (
	"context"

	"pkt.systems/webmux/schema"
)

// Channel is one window's duplex connection to the backend.
type Channel interface {
	// Send writes one protocol message to the backend.
	Send(msg schema.Message) error
	// Receive blocks until the next inbound message or a connection error.
	Receive() (schema.Message, error)
	// Close tears the connection down. Receive unblocks with an error.
	Close() error
}

// Dialer opens a duplex channel to the backend.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// SessionInfo describes one backend session in a detailed listing.
type SessionInfo struct {
	Name     schema.SessionName `json:"name"`
	Windows  int                `json:"windows"`
	Attached bool               `json:"attached"`
	Created  int64              `json:"created,omitempty"`
}

// SessionControl is the request/response surface for persistent-session
// lifecycle operations addressed by session name.
type SessionControl interface {
	DetachSession(ctx context.Context, name schema.SessionName) error
	KillSession(ctx context.Context, name schema.SessionName) error
	RenameSession(ctx context.Context, name schema.SessionName, to schema.SessionName) error
	CreateWindow(ctx context.Context, name schema.SessionName) error
	ListSessions(ctx context.Context) ([]SessionInfo, error)
}

// WindowOpener opens a new browser window addressed by window and terminal id.
type WindowOpener interface {
	OpenWindow(ctx context.Context, windowID schema.WindowID, sessionID schema.SessionID) error
}

// EventSink receives store mutations and terminal output. Implementations
// must not block; the store calls them synchronously under its own dispatch.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
	OnOutput(event schema.OutputEvent)
}
