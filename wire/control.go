package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webmux/core"
	"pkt.systems/webmux/schema"
)

// Control is the REST client for persistent-session lifecycle operations.
type Control struct {
	baseURL string
	client  *http.Client
	log     pslog.Logger
}

// NewControl constructs a control client against the backend's HTTP base URL.
func NewControl(baseURL string, logger pslog.Logger) *Control {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Control{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger.With("control", baseURL),
	}
}

// DetachSession implements core.SessionControl.
func (c *Control) DetachSession(ctx context.Context, name schema.SessionName) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(name)+"/detach", nil, nil)
}

// KillSession implements core.SessionControl.
func (c *Control) KillSession(ctx context.Context, name schema.SessionName) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(name), nil, nil)
}

// RenameSession implements core.SessionControl.
func (c *Control) RenameSession(ctx context.Context, name schema.SessionName, to schema.SessionName) error {
	body := map[string]schema.SessionName{"name": to}
	return c.do(ctx, http.MethodPost, c.sessionPath(name)+"/rename", body, nil)
}

// CreateWindow implements core.SessionControl.
func (c *Control) CreateWindow(ctx context.Context, name schema.SessionName) error {
	return c.do(ctx, http.MethodPost, c.sessionPath(name)+"/windows", nil, nil)
}

// ListSessions implements core.SessionControl.
func (c *Control) ListSessions(ctx context.Context) ([]core.SessionInfo, error) {
	var reply struct {
		Sessions []core.SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &reply); err != nil {
		return nil, err
	}
	return reply.Sessions, nil
}

func (c *Control) sessionPath(name schema.SessionName) string {
	return "/api/sessions/" + url.PathEscape(string(name))
}

func (c *Control) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("control call failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
