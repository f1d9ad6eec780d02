package schema

import (
	"encoding/json"
	"fmt"
)

// MessageType tags a duplex channel message.
type MessageType string

const (
	// MessageSpawn requests a new terminal process.
	MessageSpawn MessageType = "spawn"
	// MessageTerminalSpawned confirms a spawn or reconnect request.
	MessageTerminalSpawned MessageType = "terminal-spawned"
	// MessageSpawnError reports an explicit backend spawn failure.
	MessageSpawnError MessageType = "spawn-error"
	// MessageTerminalOutput carries output bytes for a terminal.
	MessageTerminalOutput MessageType = "terminal-output"
	// MessageTerminalClosed reports that a backend process exited.
	MessageTerminalClosed MessageType = "terminal-closed"
	// MessageQuerySessions asks for the backend's live session names.
	MessageQuerySessions MessageType = "query-tmux-sessions"
	// MessageSessionsList answers a MessageQuerySessions.
	MessageSessionsList MessageType = "tmux-sessions-list"
	// MessageDisconnect releases connection ownership of a terminal.
	MessageDisconnect MessageType = "disconnect"
	// MessageDetach detaches a terminal without killing it.
	MessageDetach MessageType = "detach"
	// MessageResize resizes a terminal.
	MessageResize MessageType = "resize"
	// MessageCommand writes a command line to a terminal.
	MessageCommand MessageType = "command"
)

// Message is the closed union of duplex channel payloads. Inbound frames are
// produced exclusively by Decode; outbound frames exclusively by Encode.
type Message interface {
	Kind() MessageType
}

// SpawnConfig carries the backend-facing parameters of a spawn request.
// SessionName is set when resuming an existing backend process.
type SpawnConfig struct {
	TerminalType TerminalType `json:"terminalType"`
	SessionName  SessionName  `json:"sessionName,omitempty"`
	WorkingDir   string       `json:"workingDir,omitempty"`
	Cols         int          `json:"cols,omitempty"`
	Rows         int          `json:"rows,omitempty"`
}

// Spawn requests a new or resumed terminal process.
type Spawn struct {
	RequestID RequestID   `json:"requestId"`
	Config    SpawnConfig `json:"config"`
}

// Kind implements Message.
func (Spawn) Kind() MessageType { return MessageSpawn }

// SpawnedData is the payload of a TerminalSpawned confirmation.
type SpawnedData struct {
	ID           AgentID      `json:"id"`
	SessionName  SessionName  `json:"sessionName,omitempty"`
	TerminalType TerminalType `json:"terminalType,omitempty"`
}

// TerminalSpawned confirms a spawn or reconnect.
type TerminalSpawned struct {
	RequestID RequestID   `json:"requestId,omitempty"`
	Data      SpawnedData `json:"data"`
}

// Kind implements Message.
func (TerminalSpawned) Kind() MessageType { return MessageTerminalSpawned }

// SpawnError reports an explicit backend spawn failure.
type SpawnError struct {
	RequestID RequestID `json:"requestId,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Kind implements Message.
func (SpawnError) Kind() MessageType { return MessageSpawnError }

// TerminalOutput carries output bytes to paint.
type TerminalOutput struct {
	TerminalID AgentID `json:"terminalId"`
	Data       string  `json:"data"`
}

// Kind implements Message.
func (TerminalOutput) Kind() MessageType { return MessageTerminalOutput }

// ClosedData is the payload of a TerminalClosed notification.
type ClosedData struct {
	ID AgentID `json:"id"`
}

// TerminalClosed reports a backend process exit.
type TerminalClosed struct {
	Data ClosedData `json:"data"`
}

// Kind implements Message.
func (TerminalClosed) Kind() MessageType { return MessageTerminalClosed }

// QuerySessions asks for the backend's live session names.
type QuerySessions struct{}

// Kind implements Message.
func (QuerySessions) Kind() MessageType { return MessageQuerySessions }

// SessionsData is the payload of a SessionsList reply.
type SessionsData struct {
	Sessions []SessionName `json:"sessions"`
}

// SessionsList answers a QuerySessions with the live session set.
type SessionsList struct {
	Data SessionsData `json:"data"`
}

// Kind implements Message.
func (SessionsList) Kind() MessageType { return MessageSessionsList }

// DisconnectData is the payload of a Disconnect request.
type DisconnectData struct {
	TerminalID AgentID `json:"terminalId"`
}

// Disconnect releases connection ownership of a terminal.
type Disconnect struct {
	Data DisconnectData `json:"data"`
}

// Kind implements Message.
func (Disconnect) Kind() MessageType { return MessageDisconnect }

// Detach detaches a terminal without killing the backend process.
type Detach struct {
	TerminalID AgentID `json:"terminalId"`
}

// Kind implements Message.
func (Detach) Kind() MessageType { return MessageDetach }

// Resize resizes a terminal.
type Resize struct {
	TerminalID AgentID `json:"terminalId"`
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
}

// Kind implements Message.
func (Resize) Kind() MessageType { return MessageResize }

// Command writes a command line to a terminal.
type Command struct {
	TerminalID AgentID `json:"terminalId"`
	Command    string  `json:"command"`
}

// Kind implements Message.
func (Command) Kind() MessageType { return MessageCommand }

type envelope struct {
	Type MessageType `json:"type"`
}

// Encode serializes a message into a wire frame with its type tag.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	tag, err := json.Marshal(msg.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// Decode parses a wire frame into its typed message. Unknown types return
// ErrUnknownMessage so callers can drop them without guessing at shape.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case MessageSpawn:
		return decodeAs[Spawn](data)
	case MessageTerminalSpawned:
		return decodeAs[TerminalSpawned](data)
	case MessageSpawnError:
		return decodeAs[SpawnError](data)
	case MessageTerminalOutput:
		return decodeAs[TerminalOutput](data)
	case MessageTerminalClosed:
		return decodeAs[TerminalClosed](data)
	case MessageQuerySessions:
		return decodeAs[QuerySessions](data)
	case MessageSessionsList:
		return decodeAs[SessionsList](data)
	case MessageDisconnect:
		return decodeAs[Disconnect](data)
	case MessageDetach:
		return decodeAs[Detach](data)
	case MessageResize:
		return decodeAs[Resize](data)
	case MessageCommand:
		return decodeAs[Command](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Kind(), err)
	}
	return msg, nil
}
