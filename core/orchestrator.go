package core

import (
	"context"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/webmux/internal/logx"
	"pkt.systems/webmux/schema"
)

// Orchestrator creates placeholders, issues spawn and reconnect requests,
// and reconciles locally remembered sessions against the backend's live
// session set whenever the channel opens.
type Orchestrator struct {
	cfg     schema.WorkspaceConfig
	store   *Store
	engine  *Engine
	manager *Manager
	control SessionControl
	log     pslog.Logger
}

// OrchestratorDeps captures the orchestrator's collaborators.
type OrchestratorDeps struct {
	Store   *Store
	Engine  *Engine
	Manager *Manager
	Control SessionControl
	Logger  pslog.Logger
}

// NewOrchestrator constructs the orchestrator and registers it for
// connection lifecycle callbacks.
func NewOrchestrator(cfg schema.WorkspaceConfig, deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   deps.Store,
		engine:  deps.Engine,
		manager: deps.Manager,
		control: deps.Control,
		log:     logx.WithWindow(logger, cfg.WindowID),
	}
	if deps.Manager != nil {
		deps.Manager.setHooks(o)
	}
	return o
}

// SpawnRequest describes a user-initiated terminal spawn.
type SpawnRequest struct {
	Name         string
	TerminalType schema.TerminalType
	SessionName  schema.SessionName
	WorkingDir   string
	Theme        string
}

// Spawn creates a placeholder record, registers its correlation token, and
// sends the spawn request. The registry write happens strictly before the
// request reaches the wire, so a confirmation arriving on the same tick
// still resolves.
func (o *Orchestrator) Spawn(ctx context.Context, req SpawnRequest) (schema.SessionRecord, error) {
	record := schema.SessionRecord{
		ID:           newSessionID(),
		SessionName:  req.SessionName,
		WindowID:     o.cfg.WindowID,
		Status:       schema.StatusSpawning,
		RequestID:    newRequestID(),
		SplitLayout:  schema.SingleLayout(),
		Name:         req.Name,
		TerminalType: req.TerminalType,
		WorkingDir:   req.WorkingDir,
		Theme:        req.Theme,
	}
	log := logx.WithSession(logx.WithRequest(o.log, record.RequestID), record.ID).With("type", record.TerminalType)
	o.manager.reg.put(record.RequestID, record.ID)
	o.store.Add(record)
	err := o.manager.Send(schema.Spawn{
		RequestID: record.RequestID,
		Config: schema.SpawnConfig{
			TerminalType: record.TerminalType,
			SessionName:  record.SessionName,
			WorkingDir:   record.WorkingDir,
			Cols:         o.cfg.SpawnCols,
			Rows:         o.cfg.SpawnRows,
		},
	})
	if err != nil {
		o.manager.reg.drop(record.RequestID)
		_ = o.store.Remove(record.ID)
		log.Warn("spawn send failed", "err", err)
		return schema.SessionRecord{}, fmt.Errorf("spawn: %w", err)
	}
	log.Info("spawn requested")
	return record, nil
}

// Reconnect re-queues an existing record exactly like a fresh spawn,
// reusing its backend session name and clearing the stale agent id.
func (o *Orchestrator) Reconnect(ctx context.Context, id schema.SessionID) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if !record.Resumable() {
		return fmt.Errorf("reconnect %s: %w", id, schema.ErrInvalidSession)
	}
	requestID := newRequestID()
	log := logx.WithSession(logx.WithRequest(o.log, requestID), id).With("name", record.SessionName)
	o.manager.reg.put(requestID, id)
	err := o.store.Update(id, func(r *schema.SessionRecord) {
		r.Status = schema.StatusSpawning
		r.AgentID = ""
		r.RequestID = requestID
	})
	if err != nil {
		o.manager.reg.drop(requestID)
		return err
	}
	err = o.manager.Send(schema.Spawn{
		RequestID: requestID,
		Config: schema.SpawnConfig{
			TerminalType: record.TerminalType,
			SessionName:  record.SessionName,
			WorkingDir:   record.WorkingDir,
			Cols:         o.cfg.SpawnCols,
			Rows:         o.cfg.SpawnRows,
		},
	})
	if err != nil {
		o.manager.reg.drop(requestID)
		log.Warn("reconnect send failed", "err", err)
		return fmt.Errorf("reconnect: %w", err)
	}
	log.Info("reconnect requested")
	return nil
}

// HandleConnected implements connHooks: once the channel opens, query the
// backend's live sessions if anything local could be resumed.
func (o *Orchestrator) HandleConnected(ctx context.Context) {
	hasPersisted := false
	for _, record := range o.store.Window(o.cfg.WindowID) {
		if record.Resumable() {
			hasPersisted = true
			break
		}
	}
	if !hasPersisted {
		return
	}
	if err := o.manager.Send(schema.QuerySessions{}); err != nil {
		o.log.Warn("session query send failed", "err", err)
		return
	}
	o.log.Debug("session query sent")
}

// HandleSessionsList implements connHooks: reconcile local records against
// the backend's live session set. Detached records are never auto-resumed;
// one backend process is reconnected at most once per cycle even when
// several stale local records share its name; records whose process is gone
// are removed with split repair.
func (o *Orchestrator) HandleSessionsList(ctx context.Context, live []schema.SessionName) {
	liveSet := make(map[schema.SessionName]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}
	queued := make(map[schema.SessionName]bool)
	for _, record := range o.store.List() {
		if !record.Resumable() {
			continue
		}
		if record.Status == schema.StatusDetached {
			continue
		}
		if queued[record.SessionName] {
			continue
		}
		if record.WindowID != o.cfg.WindowID {
			continue
		}
		if liveSet[record.SessionName] {
			if record.Status == schema.StatusActive {
				continue
			}
			queued[record.SessionName] = true
			if err := o.Reconnect(ctx, record.ID); err != nil {
				o.log.Warn("reconcile reconnect failed", "session", record.ID, "err", err)
			}
			continue
		}
		// The backend process is gone; this is expected lifecycle, not an
		// error.
		o.log.Info("session vanished", "session", record.ID, "name", record.SessionName)
		if err := o.store.Remove(record.ID); err != nil {
			o.log.Warn("vanished session remove failed", "session", record.ID, "err", err)
			continue
		}
		if o.engine != nil {
			o.engine.RepairAfterRemoval(record.ID)
		}
		selectFallbackActive(o.store, o.cfg.WindowID)
	}
}

// DetachSession marks a record detached by explicit user choice. Detached
// records keep their backend process but are excluded from automatic
// reconnection. The backend detach call is best-effort and never blocks.
func (o *Orchestrator) DetachSession(ctx context.Context, id schema.SessionID) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if record.AgentID != "" {
		if err := o.manager.Send(schema.Disconnect{Data: schema.DisconnectData{TerminalID: record.AgentID}}); err != nil {
			o.log.Debug("disconnect send failed", "session", id, "err", err)
		}
	}
	if err := o.store.Update(id, func(r *schema.SessionRecord) {
		r.Status = schema.StatusDetached
		r.AgentID = ""
		r.RequestID = ""
	}); err != nil {
		return err
	}
	if record.Resumable() && o.control != nil {
		if err := o.control.DetachSession(ctx, record.SessionName); err != nil {
			o.log.Warn("backend detach failed", "session", id, "name", record.SessionName, "err", err)
		}
	}
	o.log.Info("session detached", "session", id)
	return nil
}

// KillSession terminates the backend process and removes the local record.
func (o *Orchestrator) KillSession(ctx context.Context, id schema.SessionID) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if record.Resumable() && o.control != nil {
		if err := o.control.KillSession(ctx, record.SessionName); err != nil {
			return fmt.Errorf("kill %s: %w", record.SessionName, err)
		}
	}
	if err := o.store.Remove(id); err != nil {
		return err
	}
	if o.engine != nil {
		o.engine.RepairAfterRemoval(id)
	}
	selectFallbackActive(o.store, o.cfg.WindowID)
	o.log.Info("session killed", "session", id)
	return nil
}

// RenameSession renames the backend process and mirrors the new name on the
// local record.
func (o *Orchestrator) RenameSession(ctx context.Context, id schema.SessionID, to schema.SessionName) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if !record.Resumable() {
		return fmt.Errorf("rename %s: %w", id, schema.ErrInvalidSession)
	}
	if o.control != nil {
		if err := o.control.RenameSession(ctx, record.SessionName, to); err != nil {
			return fmt.Errorf("rename %s: %w", record.SessionName, err)
		}
	}
	return o.store.Update(id, func(r *schema.SessionRecord) {
		r.SessionName = to
	})
}

// CreateSessionWindow adds a backend window to a resumable session.
func (o *Orchestrator) CreateSessionWindow(ctx context.Context, id schema.SessionID) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if !record.Resumable() {
		return fmt.Errorf("create window %s: %w", id, schema.ErrInvalidSession)
	}
	if o.control == nil {
		return nil
	}
	return o.control.CreateWindow(ctx, record.SessionName)
}

// Resize forwards a terminal resize to the backend.
func (o *Orchestrator) Resize(ctx context.Context, id schema.SessionID, cols, rows int) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if record.AgentID == "" {
		return schema.ErrChannelClosed
	}
	return o.manager.Send(schema.Resize{TerminalID: record.AgentID, Cols: cols, Rows: rows})
}

// RunCommand writes a command line to the terminal.
func (o *Orchestrator) RunCommand(ctx context.Context, id schema.SessionID, command string) error {
	record, ok := o.store.Get(id)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if record.AgentID == "" {
		return schema.ErrChannelClosed
	}
	return o.manager.Send(schema.Command{TerminalID: record.AgentID, Command: command})
}
