package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webmux/internal/logx"
	"pkt.systems/webmux/schema"
)

// settleSleep is the pop-out settle wait; replaced in tests.
var settleSleep = time.Sleep

// Coordinator re-homes a terminal, a pane, or an entire split container
// into a new browser window while preserving backend continuity. The state
// move commits synchronously; backend notifications are best-effort; the
// window open happens after a settle delay exceeding the store's persist
// debounce, so the new window's first read of shared state already reflects
// the ownership change.
type Coordinator struct {
	cfg     schema.WorkspaceConfig
	store   *Store
	engine  *Engine
	manager *Manager
	control SessionControl
	opener  WindowOpener
	log     pslog.Logger
}

// CoordinatorDeps captures the pop-out coordinator's collaborators.
type CoordinatorDeps struct {
	Store   *Store
	Engine  *Engine
	Manager *Manager
	Control SessionControl
	Opener  WindowOpener
	Logger  pslog.Logger
}

// NewCoordinator constructs a pop-out coordinator for one window.
func NewCoordinator(cfg schema.WorkspaceConfig, deps CoordinatorDeps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Coordinator{
		cfg:     cfg,
		store:   deps.Store,
		engine:  deps.Engine,
		manager: deps.Manager,
		control: deps.Control,
		opener:  deps.Opener,
		log:     logx.WithWindow(logger, cfg.WindowID),
	}
}

// PopOut re-homes the given record: a split container pops every pane into
// its own window, a pane leaves its container with repair, and a plain
// terminal moves as-is.
func (c *Coordinator) PopOut(ctx context.Context, id schema.SessionID) error {
	record, ok := c.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if record.IsSplit() {
		return c.PopOutContainer(ctx, id)
	}
	if owner := c.engine.paneOwner(id); owner != "" {
		return c.PopOutPane(ctx, id)
	}
	return c.popOutSingle(ctx, id)
}

// PopOutPane moves one pane out of its split container into a new window,
// repairing the container via the unsplit algorithm.
func (c *Coordinator) PopOutPane(ctx context.Context, paneID schema.SessionID) error {
	containerID := c.engine.paneOwner(paneID)
	if containerID == "" {
		return c.popOutSingle(ctx, paneID)
	}
	record, ok := c.store.Get(paneID)
	if !ok {
		return schema.ErrSessionNotFound
	}
	wasActive := c.store.Active() == paneID
	oldAgent := record.AgentID
	newWindow, err := c.moveRecord(paneID)
	if err != nil {
		return err
	}
	if err := c.engine.repairContainer(containerID, paneID); err != nil {
		c.log.Warn("popout container repair failed", "container", containerID, "err", err)
	}
	if wasActive && c.store.Active() == paneID {
		if _, ok := c.store.Get(containerID); ok {
			_ = c.store.SetActive(containerID)
		} else {
			_ = c.store.SetActive("")
		}
	}
	c.releaseBackend(ctx, record, oldAgent)
	settleSleep(c.cfg.SettleDelay)
	if err := c.openWindow(ctx, newWindow, paneID); err != nil {
		return err
	}
	c.log.Info("pane popped out", "session", paneID, "new_window", newWindow)
	return nil
}

// PopOutContainer pops every pane of a split into its own, independent
// window. The container is deliberately not preserved: one pop-out window
// per pane. Open failures are aggregated into a single error; the committed
// state move is never rolled back.
func (c *Coordinator) PopOutContainer(ctx context.Context, containerID schema.SessionID) error {
	container, ok := c.store.Get(containerID)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if !container.IsSplit() {
		return c.popOutSingle(ctx, containerID)
	}
	panes := container.SplitLayout.Panes
	type move struct {
		sessionID schema.SessionID
		windowID  schema.WindowID
	}
	moves := make([]move, 0, len(panes))
	selfHosted := false
	for _, pane := range panes {
		if pane.TerminalID == containerID {
			selfHosted = true
		}
		record, ok := c.store.Get(pane.TerminalID)
		if !ok {
			continue
		}
		oldAgent := record.AgentID
		newWindow, err := c.moveRecord(pane.TerminalID)
		if err != nil {
			c.log.Warn("popout pane move failed", "session", pane.TerminalID, "err", err)
			continue
		}
		c.releaseBackend(ctx, record, oldAgent)
		moves = append(moves, move{sessionID: pane.TerminalID, windowID: newWindow})
	}
	if !selfHosted {
		if err := c.store.Remove(containerID); err != nil {
			c.log.Warn("popout container remove failed", "container", containerID, "err", err)
		}
	}
	_ = c.store.SetActive("")
	selectFallbackActive(c.store, c.cfg.WindowID)

	settleSleep(c.cfg.SettleDelay)
	blocked := 0
	for _, mv := range moves {
		if err := c.openWindow(ctx, mv.windowID, mv.sessionID); err != nil {
			blocked++
		}
	}
	c.log.Info("split popped out", "container", containerID, "panes", len(moves), "blocked", blocked)
	if blocked > 0 {
		return fmt.Errorf("%d of %d pop-out windows: %w", blocked, len(moves), schema.ErrWindowOpenBlocked)
	}
	return nil
}

func (c *Coordinator) popOutSingle(ctx context.Context, id schema.SessionID) error {
	record, ok := c.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	oldAgent := record.AgentID
	newWindow, err := c.moveRecord(id)
	if err != nil {
		return err
	}
	if c.store.Active() == id {
		_ = c.store.SetActive("")
		selectFallbackActive(c.store, c.cfg.WindowID)
	}
	c.releaseBackend(ctx, record, oldAgent)
	settleSleep(c.cfg.SettleDelay)
	if err := c.openWindow(ctx, newWindow, id); err != nil {
		return err
	}
	c.log.Info("terminal popped out", "session", id, "new_window", newWindow)
	return nil
}

// moveRecord commits the local side of a pop-out: fresh window id, cleared
// connection identity, spawning status, visible, no split.
func (c *Coordinator) moveRecord(id schema.SessionID) (schema.WindowID, error) {
	newWindow := newWindowID()
	err := c.store.Update(id, func(r *schema.SessionRecord) {
		r.AgentID = ""
		r.Status = schema.StatusSpawning
		r.RequestID = ""
		r.WindowID = newWindow
		r.IsHidden = false
		r.SplitLayout = schema.SingleLayout()
	})
	if err != nil {
		return "", err
	}
	return newWindow, nil
}

// releaseBackend drops the old connection ownership and, for resumable
// sessions, requests an explicit detach. Both calls are best-effort and
// never block the rest of the sequence.
func (c *Coordinator) releaseBackend(ctx context.Context, record schema.SessionRecord, oldAgent schema.AgentID) {
	if oldAgent != "" && c.manager != nil {
		if err := c.manager.Send(schema.Disconnect{Data: schema.DisconnectData{TerminalID: oldAgent}}); err != nil {
			c.log.Debug("popout disconnect send failed", "session", record.ID, "err", err)
		}
	}
	if record.Resumable() && c.control != nil {
		if err := c.control.DetachSession(ctx, record.SessionName); err != nil {
			c.log.Warn("popout detach failed", "session", record.ID, "name", record.SessionName, "err", err)
		}
	}
}

func (c *Coordinator) openWindow(ctx context.Context, windowID schema.WindowID, sessionID schema.SessionID) error {
	if c.opener == nil {
		return nil
	}
	if err := c.opener.OpenWindow(ctx, windowID, sessionID); err != nil {
		// The state move is already committed; surface the warning but do
		// not roll back.
		c.log.Warn("pop-out window blocked", "session", sessionID, "new_window", windowID, "err", err)
		return fmt.Errorf("open %s: %w", windowID, schema.ErrWindowOpenBlocked)
	}
	return nil
}
