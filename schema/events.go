package schema

// SessionEventType identifies a store change event.
type SessionEventType string

const (
	// SessionEventAdded fires when a record enters the store.
	SessionEventAdded SessionEventType = "added"
	// SessionEventUpdated fires when a record's fields change.
	SessionEventUpdated SessionEventType = "updated"
	// SessionEventRemoved fires when a record leaves the store.
	SessionEventRemoved SessionEventType = "removed"
	// SessionEventReordered fires when the tab-strip order changes.
	SessionEventReordered SessionEventType = "reordered"
	// SessionEventActivated fires when the active selection changes.
	SessionEventActivated SessionEventType = "activated"
)

// SessionEvent describes one synchronous mutation of the session store.
// Session is a snapshot taken after the mutation; it is zero for reorder
// and activate events.
type SessionEvent struct {
	Type     SessionEventType
	WindowID WindowID
	Session  SessionRecord
	Active   SessionID
	Order    []SessionID
}

// OutputEvent carries terminal output bytes toward the rendering widget.
type OutputEvent struct {
	WindowID   WindowID
	SessionID  SessionID
	TerminalID AgentID
	Data       string
}
