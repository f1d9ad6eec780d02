package schema

// SessionID is the stable client-generated identity of a session record.
// It is permanent for the record's lifetime.
type SessionID string

// SessionName is the backend-persistent process identity. It survives
// reconnects and window moves. Empty for non-resumable sessions.
type SessionName string

// AgentID is the ephemeral connection-scoped identity assigned by the
// backend on each successful attach. Cleared on every disconnect.
type AgentID string

// WindowID is the logical partition key identifying which browser window
// owns a record.
type WindowID string

// MainWindow is the default window id for records that were never popped out.
const MainWindow WindowID = "main"

// RequestID correlates an outbound spawn/reconnect request with its
// asynchronous confirmation.
type RequestID string

// TerminalType names the kind of process behind a session (bash, zsh, …).
// Opaque to the core except for correlation matching.
type TerminalType string

// ProfileID identifies the browser profile whose shared state blob the
// store persists into.
type ProfileID string
