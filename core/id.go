package core

import (
	"github.com/google/uuid"

	"pkt.systems/webmux/schema"
)

func newSessionID() schema.SessionID {
	return schema.SessionID("term-" + uuid.NewString())
}

func newRequestID() schema.RequestID {
	return schema.RequestID("req-" + uuid.NewString())
}

func newWindowID() schema.WindowID {
	return schema.WindowID("win-" + uuid.NewString())
}

func newPaneID() string {
	return "pane-" + uuid.NewString()
}
