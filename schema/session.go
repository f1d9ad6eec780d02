package schema

// SessionStatus describes the lifecycle state of a session record.
// Removal is a transition out of the model, not a status.
type SessionStatus string

const (
	// StatusSpawning marks a placeholder whose spawn or reconnect
	// confirmation is still outstanding.
	StatusSpawning SessionStatus = "spawning"
	// StatusActive marks a record with a live backend attachment.
	StatusActive SessionStatus = "active"
	// StatusError marks a record whose spawn was rejected by the backend.
	StatusError SessionStatus = "error"
	// StatusDetached marks a record explicitly detached by the user.
	// Detached records are never auto-resumed.
	StatusDetached SessionStatus = "detached"
)

// SessionRecord is one terminal/process the user can interact with.
// Descriptive fields (Name, TerminalType, WorkingDir, Theme) are opaque to
// the core and passed through unchanged.
type SessionRecord struct {
	ID          SessionID     `json:"id"`
	SessionName SessionName   `json:"sessionName,omitempty"`
	AgentID     AgentID       `json:"agentId,omitempty"`
	WindowID    WindowID      `json:"windowId"`
	Status      SessionStatus `json:"status"`
	RequestID   RequestID     `json:"requestId,omitempty"`
	SplitLayout SplitLayout   `json:"splitLayout"`
	IsHidden    bool          `json:"isHidden,omitempty"`

	Name         string       `json:"name,omitempty"`
	TerminalType TerminalType `json:"terminalType,omitempty"`
	WorkingDir   string       `json:"workingDir,omitempty"`
	Theme        string       `json:"theme,omitempty"`
}

// Resumable reports whether the record has a backend-persistent identity.
func (r SessionRecord) Resumable() bool {
	return r.SessionName != ""
}

// IsSplit reports whether the record hosts a live split.
func (r SessionRecord) IsSplit() bool {
	return r.SplitLayout.Type != SplitSingle
}

// Clone returns a deep copy of the record.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	out.SplitLayout = r.SplitLayout.Clone()
	return out
}
