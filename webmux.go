// Package webmux composes the session orchestration core behind one browser
// window of a terminal-multiplexer workspace: the shared session store, the
// backend connection manager, the spawn orchestrator, the split layout
// engine, and the pop-out coordinator.
package webmux

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/webmux/core"
	"pkt.systems/webmux/internal/eventbus"
	"pkt.systems/webmux/internal/logx"
	"pkt.systems/webmux/internal/persist"
	"pkt.systems/webmux/schema"
)

// Workspace is one window's orchestration runtime.
type Workspace interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error

	// Store exposes the session store for UI reads and tab operations.
	Store() *core.Store
	// Orchestrator exposes spawn/reconnect and session lifecycle operations.
	Orchestrator() *core.Orchestrator
	// Splits exposes the drag-and-drop layout engine.
	Splits() *core.Engine
	// PopOuts exposes the pop-out coordinator.
	PopOuts() *core.Coordinator
	// Events exposes the per-window event bus for UI subscriptions.
	Events() *eventbus.Bus
}

// WorkspaceDeps captures the injectable transport and platform dependencies.
type WorkspaceDeps struct {
	// Dialer opens the duplex channel to the terminal backend. Required.
	Dialer core.Dialer
	// Control performs REST session lifecycle calls. Optional.
	Control core.SessionControl
	// Opener opens pop-out browser windows. Optional.
	Opener core.WindowOpener
	// StateDir holds the shared persisted blob. Empty disables persistence.
	StateDir string
	// Sink receives events in addition to the built-in bus. Optional.
	Sink core.EventSink
	// Logger defaults to the ambient context logger.
	Logger pslog.Logger
}

// New builds a workspace for the given window configuration.
func New(cfg schema.WorkspaceConfig, deps WorkspaceDeps) (Workspace, error) {
	if deps.Dialer == nil {
		return nil, errors.New("dialer dependency is required")
	}
	cfg, err := schema.NormalizeWorkspaceConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	bus := eventbus.New(logger)
	sinks := []core.EventSink{bus}
	if deps.Sink != nil {
		sinks = append(sinks, deps.Sink)
	}
	var sink core.EventSink = eventFanout{sinks: sinks}
	if len(sinks) == 1 {
		sink = sinks[0]
	}

	var blob *persist.Store
	if deps.StateDir != "" {
		blob, err = persist.NewStoreWithLogger(deps.StateDir, logger)
		if err != nil {
			return nil, err
		}
	}

	store := core.NewStore(cfg, core.StoreDeps{
		Persist: blob,
		Sink:    sink,
		Logger:  logger,
	})
	engine := core.NewEngine(store, logger)
	manager := core.NewManager(cfg, core.ManagerDeps{
		Store:  store,
		Engine: engine,
		Dialer: deps.Dialer,
		Sink:   sink,
		Logger: logger,
	})
	orchestrator := core.NewOrchestrator(cfg, core.OrchestratorDeps{
		Store:   store,
		Engine:  engine,
		Manager: manager,
		Control: deps.Control,
		Logger:  logger,
	})
	coordinator := core.NewCoordinator(cfg, core.CoordinatorDeps{
		Store:   store,
		Engine:  engine,
		Manager: manager,
		Control: deps.Control,
		Opener:  deps.Opener,
		Logger:  logger,
	})

	return &workspace{
		cfg:          cfg,
		blob:         blob,
		store:        store,
		engine:       engine,
		manager:      manager,
		orchestrator: orchestrator,
		coordinator:  coordinator,
		bus:          bus,
		logger:       logx.WithWindow(logger, cfg.WindowID),
	}, nil
}

type workspace struct {
	cfg          schema.WorkspaceConfig
	blob         *persist.Store
	store        *core.Store
	engine       *core.Engine
	manager      *core.Manager
	orchestrator *core.Orchestrator
	coordinator  *core.Coordinator
	bus          *eventbus.Bus
	logger       pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (w *workspace) Store() *core.Store               { return w.store }
func (w *workspace) Orchestrator() *core.Orchestrator { return w.orchestrator }
func (w *workspace) Splits() *core.Engine             { return w.engine }
func (w *workspace) PopOuts() *core.Coordinator       { return w.coordinator }
func (w *workspace) Events() *eventbus.Bus            { return w.bus }

// Start seeds the store from the shared blob, begins the connection loop,
// and watches the blob for sibling-window changes.
func (w *workspace) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Warn("workspace start rejected", "reason", "already started")
		return errors.New("workspace already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.errCh = make(chan error, 2)
	w.started = true
	w.mu.Unlock()

	if err := w.store.LoadPersisted(); err != nil {
		w.logger.Warn("workspace state load failed", "err", err)
	}
	w.logger.Info("workspace start", "profile", w.cfg.Profile)

	go func() {
		if err := w.manager.Run(w.ctx); err != nil {
			w.logger.Error("connection manager failed", "err", err)
			w.errCh <- err
		}
	}()

	if w.blob != nil {
		changes, err := w.blob.Watch(w.ctx)
		if err != nil {
			w.logger.Warn("state watch unavailable", "err", err)
		} else {
			go w.reloadLoop(changes)
		}
	}
	return nil
}

func (w *workspace) reloadLoop(changes <-chan schema.ProfileID) {
	for profile := range changes {
		if profile != w.cfg.Profile {
			continue
		}
		if err := w.store.Reload(); err != nil {
			w.logger.Warn("shared state reload failed", "err", err)
		}
	}
}

func (w *workspace) Wait() error {
	w.mu.Lock()
	ctx := w.ctx
	errCh := w.errCh
	started := w.started
	w.mu.Unlock()
	if !started {
		return errors.New("workspace not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			w.logger.Error("workspace stopped", "err", err)
			_ = w.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (w *workspace) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel := w.cancel
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	w.logger.Info("workspace stop requested")
	if err := w.manager.Close(); err != nil {
		w.logger.Debug("channel close failed", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	if err := w.store.Close(); err != nil {
		w.logger.Warn("workspace state flush failed", "err", err)
		return err
	}
	w.logger.Info("workspace stopped")
	return nil
}
