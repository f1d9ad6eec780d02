package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"pkt.systems/webmux/schema"
)

func TestChannelSendReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := schema.Decode(data)
		if err != nil {
			t.Errorf("decode inbound: %v", err)
			return
		}
		spawn, ok := msg.(schema.Spawn)
		if !ok {
			t.Errorf("expected Spawn, got %T", msg)
			return
		}
		reply, err := schema.Encode(schema.TerminalSpawned{
			RequestID: spawn.RequestID,
			Data:      schema.SpawnedData{ID: "agent-1", TerminalType: spawn.Config.TerminalType},
		})
		if err != nil {
			t.Errorf("encode reply: %v", err)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, reply)
	}))
	defer server.Close()

	dialer := NewDialer("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	channel, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = channel.Close() }()

	if err := channel.Send(schema.Spawn{
		RequestID: "req-1",
		Config:    schema.SpawnConfig{TerminalType: "shell"},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err := channel.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	spawned, ok := msg.(schema.TerminalSpawned)
	if !ok {
		t.Fatalf("expected TerminalSpawned, got %T", msg)
	}
	if spawned.RequestID != "req-1" || spawned.Data.ID != "agent-1" {
		t.Fatalf("unexpected reply %+v", spawned)
	}
}

func TestChannelSkipsUndecodableFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"telepathy"}`))
		frame, _ := schema.Encode(schema.TerminalOutput{TerminalID: "agent-1", Data: "hi"})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}))
	defer server.Close()

	dialer := NewDialer("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	channel, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = channel.Close() }()

	msg, err := channel.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Kind() != schema.MessageTerminalOutput {
		t.Fatalf("expected the decodable frame, got %q", msg.Kind())
	}
}

func TestDialFailure(t *testing.T) {
	dialer := NewDialer("ws://127.0.0.1:1/ws", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := dialer.Dial(ctx); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestControlEndpoints(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/sessions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sessions": []map[string]any{
					{"name": "work", "windows": 2, "attached": true},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/sessions/work/rename":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] != "renamed" {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	control := NewControl(server.URL, nil)
	ctx := context.Background()

	if err := control.DetachSession(ctx, "work"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := control.KillSession(ctx, "work"); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := control.RenameSession(ctx, "work", "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := control.CreateWindow(ctx, "work"); err != nil {
		t.Fatalf("create window: %v", err)
	}
	sessions, err := control.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "work" || sessions[0].Windows != 2 || !sessions[0].Attached {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	want := []string{
		"POST /api/sessions/work/detach",
		"DELETE /api/sessions/work",
		"POST /api/sessions/work/rename",
		"POST /api/sessions/work/windows",
		"GET /api/sessions",
	}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], calls[i])
		}
	}
}

func TestControlErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer server.Close()

	control := NewControl(server.URL, nil)
	err := control.KillSession(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestControlEscapesSessionNames(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	control := NewControl(server.URL, nil)
	if err := control.DetachSession(context.Background(), "my session/2"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if !strings.Contains(path, "my%20session%2F2") {
		t.Fatalf("expected escaped name in path, got %q", path)
	}
}
