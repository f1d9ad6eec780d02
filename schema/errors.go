package schema

import "errors"

var (
	// ErrInvalidSession indicates a malformed session record.
	ErrInvalidSession = errors.New("invalid session record")
	// ErrSessionNotFound indicates a requested session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSplit indicates a split layout violating its invariants.
	ErrInvalidSplit = errors.New("invalid split layout")
	// ErrSplitRejected indicates a merge that would violate split nesting.
	ErrSplitRejected = errors.New("split rejected")
	// ErrSpawnRejected indicates the backend refused to spawn a terminal.
	ErrSpawnRejected = errors.New("spawn rejected by backend")
	// ErrDetachFailed indicates a best-effort detach call failed.
	ErrDetachFailed = errors.New("detach failed")
	// ErrWindowOpenBlocked indicates the host refused to open a new window.
	ErrWindowOpenBlocked = errors.New("window open blocked")
	// ErrChannelClosed indicates the duplex channel is not connected.
	ErrChannelClosed = errors.New("channel closed")
	// ErrUnknownMessage indicates an inbound message of unknown type.
	ErrUnknownMessage = errors.New("unknown message type")
)
