package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webmux/internal/logx"
	"pkt.systems/webmux/schema"
)

// connHooks are the orchestration callbacks driven by connection lifecycle.
type connHooks interface {
	// HandleConnected runs once the channel is open.
	HandleConnected(ctx context.Context)
	// HandleSessionsList delivers the backend's live session set.
	HandleSessionsList(ctx context.Context, live []schema.SessionName)
}

// Manager owns one window's duplex channel: it dials with exponential
// backoff, decodes inbound protocol messages, and applies the window
// isolation and correlation-cascade rules before touching the store. It is
// the sole writer into the store for network-originated state.
type Manager struct {
	cfg    schema.WorkspaceConfig
	store  *Store
	engine *Engine
	reg    *registry
	dialer Dialer
	sink   EventSink
	log    pslog.Logger

	mu      sync.Mutex
	channel Channel
	hooks   connHooks
	closed  bool
}

// ManagerDeps captures the connection manager's collaborators.
type ManagerDeps struct {
	Store  *Store
	Engine *Engine
	Dialer Dialer
	Sink   EventSink
	Logger pslog.Logger
}

// NewManager constructs a connection manager for one window.
func NewManager(cfg schema.WorkspaceConfig, deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:    cfg,
		store:  deps.Store,
		engine: deps.Engine,
		reg:    newRegistry(),
		dialer: deps.Dialer,
		sink:   deps.Sink,
		log:    logx.WithWindow(logger, cfg.WindowID),
	}
}

func (m *Manager) setHooks(hooks connHooks) {
	m.mu.Lock()
	m.hooks = hooks
	m.mu.Unlock()
}

// Send writes one message to the backend, or reports the channel closed.
func (m *Manager) Send(msg schema.Message) error {
	m.mu.Lock()
	channel := m.channel
	m.mu.Unlock()
	if channel == nil {
		return schema.ErrChannelClosed
	}
	return channel.Send(msg)
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel != nil
}

// Close tears down the connection and stops the reconnect loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	channel := m.channel
	m.channel = nil
	m.mu.Unlock()
	if channel != nil {
		return channel.Close()
	}
	return nil
}

// Run dials the backend and processes inbound messages until the context is
// cancelled or the bounded reconnect budget is exhausted. Intentional
// closures (context cancel, Close) skip the backoff entirely.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if m.isClosed() {
			return nil
		}
		channel, err := m.dialer.Dial(ctx)
		if err != nil {
			attempt++
			if attempt >= m.cfg.BackoffAttempts {
				return fmt.Errorf("connect %s: %w", m.cfg.WindowID, err)
			}
			delay := m.backoffDelay(attempt)
			m.log.Warn("channel connect failed", "attempt", attempt, "retry_in", delay, "err", err)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		attempt = 0
		m.mu.Lock()
		m.channel = channel
		hooks := m.hooks
		m.mu.Unlock()
		m.log.Info("channel connected")
		if hooks != nil {
			hooks.HandleConnected(ctx)
		}

		err = m.readLoop(ctx, channel)

		m.mu.Lock()
		m.channel = nil
		m.mu.Unlock()
		// The connection identity is gone; every attached record must
		// re-announce itself rather than trust a stale agent id.
		m.resetLiveRecords()
		if ctx.Err() != nil || m.isClosed() {
			return nil
		}
		attempt++
		if attempt >= m.cfg.BackoffAttempts {
			return fmt.Errorf("channel lost %s: %w", m.cfg.WindowID, err)
		}
		delay := m.backoffDelay(attempt)
		m.log.Warn("channel disconnected", "retry_in", delay, "err", err)
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, channel Channel) error {
	for {
		msg, err := channel.Receive()
		if err != nil {
			return err
		}
		m.dispatch(ctx, msg)
	}
}

func (m *Manager) dispatch(ctx context.Context, msg schema.Message) {
	switch typed := msg.(type) {
	case schema.TerminalSpawned:
		m.handleSpawned(typed)
	case schema.SpawnError:
		m.handleSpawnError(typed)
	case schema.TerminalOutput:
		m.handleOutput(typed)
	case schema.TerminalClosed:
		m.handleClosed(typed)
	case schema.SessionsList:
		m.mu.Lock()
		hooks := m.hooks
		m.mu.Unlock()
		if hooks != nil {
			hooks.HandleSessionsList(ctx, typed.Data.Sessions)
		}
	default:
		m.log.Trace("inbound message dropped", "type", msg.Kind())
	}
}

// handleSpawned resolves a spawn confirmation through the correlation
// cascade, first match wins:
//  1. exact request token in the registry,
//  2. a record whose own requestId field matches,
//  3. a record already carrying the new agent id (duplicate delivery),
//  4. the most recently created spawning record of the same terminal type
//     in this window (for backends that reply faster than the registry
//     write can be observed).
//
// No match drops the event: a confirmation never synthesizes a record.
func (m *Manager) handleSpawned(msg schema.TerminalSpawned) {
	log := logx.WithRequest(m.log, msg.RequestID).With("agent", msg.Data.ID)
	id, ok := m.resolveSpawned(msg)
	if !ok {
		log.Debug("spawn confirmation unattributed; dropped")
		return
	}
	record, ok := m.store.Get(id)
	if !ok {
		log.Debug("spawn confirmation for vanished record; dropped")
		return
	}
	// A window must never adopt a session intended for a different window,
	// even when a relaxed heuristic matched it.
	if record.WindowID != m.cfg.WindowID {
		log.Debug("spawn confirmation for foreign window; discarded", "owner", record.WindowID)
		return
	}
	m.reg.drop(msg.RequestID)
	err := m.store.Update(id, func(r *schema.SessionRecord) {
		r.Status = schema.StatusActive
		r.AgentID = msg.Data.ID
		r.RequestID = ""
		if r.SessionName == "" {
			r.SessionName = msg.Data.SessionName
		}
	})
	if err != nil {
		log.Warn("spawn confirmation apply failed", "err", err)
		return
	}
	log.Info("terminal attached", "session", id)
}

func (m *Manager) resolveSpawned(msg schema.TerminalSpawned) (schema.SessionID, bool) {
	if id, ok := m.reg.take(msg.RequestID); ok {
		return id, true
	}
	records := m.store.List()
	if msg.RequestID != "" {
		for _, record := range records {
			if record.RequestID == msg.RequestID {
				return record.ID, true
			}
		}
	}
	if msg.Data.ID != "" {
		for _, record := range records {
			if record.AgentID == msg.Data.ID {
				return record.ID, true
			}
		}
	}
	var fallback schema.SessionID
	for _, record := range records {
		if record.Status != schema.StatusSpawning {
			continue
		}
		if record.TerminalType != msg.Data.TerminalType {
			continue
		}
		if record.WindowID != m.cfg.WindowID {
			continue
		}
		// Store order is creation order; the last hit is the newest.
		fallback = record.ID
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

func (m *Manager) handleSpawnError(msg schema.SpawnError) {
	log := logx.WithRequest(m.log, msg.RequestID)
	id, ok := m.reg.take(msg.RequestID)
	if !ok {
		for _, record := range m.store.List() {
			if msg.RequestID != "" && record.RequestID == msg.RequestID {
				id, ok = record.ID, true
				break
			}
		}
	}
	if !ok {
		log.Debug("spawn error unattributed; dropped")
		return
	}
	err := m.store.Update(id, func(r *schema.SessionRecord) {
		r.Status = schema.StatusError
		r.RequestID = ""
	})
	if err != nil {
		log.Warn("spawn error apply failed", "err", err)
		return
	}
	log.Warn("spawn rejected by backend", "session", id, "reason", msg.Error)
}

func (m *Manager) handleOutput(msg schema.TerminalOutput) {
	if m.sink == nil || msg.TerminalID == "" {
		return
	}
	for _, record := range m.store.Window(m.cfg.WindowID) {
		if record.AgentID != msg.TerminalID {
			continue
		}
		m.sink.OnOutput(schema.OutputEvent{
			WindowID:   record.WindowID,
			SessionID:  record.ID,
			TerminalID: msg.TerminalID,
			Data:       msg.Data,
		})
		return
	}
	m.log.Trace("output for unknown terminal dropped", "terminal", msg.TerminalID)
}

func (m *Manager) handleClosed(msg schema.TerminalClosed) {
	for _, record := range m.store.Window(m.cfg.WindowID) {
		if record.AgentID != msg.Data.ID {
			continue
		}
		if err := m.store.Remove(record.ID); err != nil {
			m.log.Warn("closed terminal remove failed", "session", record.ID, "err", err)
			return
		}
		if m.engine != nil {
			m.engine.RepairAfterRemoval(record.ID)
		}
		selectFallbackActive(m.store, m.cfg.WindowID)
		m.log.Info("terminal closed by backend", "session", record.ID)
		return
	}
	m.log.Trace("close for unknown terminal dropped", "terminal", msg.Data.ID)
}

// resetLiveRecords reverts every attached record in this window to spawning
// with its agent id cleared.
func (m *Manager) resetLiveRecords() {
	for _, record := range m.store.Window(m.cfg.WindowID) {
		if record.AgentID == "" {
			continue
		}
		_ = m.store.Update(record.ID, func(r *schema.SessionRecord) {
			r.Status = schema.StatusSpawning
			r.AgentID = ""
		})
	}
}

// selectFallbackActive picks a visible record for the window when nothing
// is active anymore.
func selectFallbackActive(store *Store, windowID schema.WindowID) {
	if store.Active() != "" {
		return
	}
	for _, record := range store.Window(windowID) {
		if record.IsHidden {
			continue
		}
		_ = store.SetActive(record.ID)
		return
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.BackoffCeiling {
			return m.cfg.BackoffCeiling
		}
	}
	if delay > m.cfg.BackoffCeiling {
		delay = m.cfg.BackoffCeiling
	}
	return delay
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
