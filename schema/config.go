package schema

import (
	"errors"
	"time"
)

// DropEdgeThresholdPercent is the width of the drop-zone edge bands as a
// percentage of the target rectangle. Pointer positions inside a band split;
// positions outside every band reorder.
const DropEdgeThresholdPercent = 20.0

// Default timing knobs. The settle delay must exceed the persist debounce so
// that a freshly opened window's first read of shared state already reflects
// an ownership change.
const (
	DefaultPersistDebounce = 300 * time.Millisecond
	DefaultSettleDelay     = 500 * time.Millisecond
	DefaultBackoffBase     = time.Second
	DefaultBackoffCeiling  = 30 * time.Second
	DefaultBackoffAttempts = 10
	DefaultSpawnCols       = 80
	DefaultSpawnRows       = 24
)

// WorkspaceConfig defines timing and identity parameters for one window's
// orchestration core.
type WorkspaceConfig struct {
	// WindowID is the partition this core filters the shared store by.
	WindowID WindowID
	// Profile selects the shared persisted blob.
	Profile ProfileID
	// PersistDebounce is the store's write-coalescing delay.
	PersistDebounce time.Duration
	// SettleDelay is the pop-out wait before opening the new window.
	SettleDelay time.Duration
	// BackoffBase is the first reconnect delay; it doubles per attempt.
	BackoffBase time.Duration
	// BackoffCeiling caps the reconnect delay.
	BackoffCeiling time.Duration
	// BackoffAttempts bounds the reconnect loop.
	BackoffAttempts int
	// SpawnCols/SpawnRows size newly spawned terminals.
	SpawnCols int
	SpawnRows int
}

// NormalizeWorkspaceConfig applies defaults and validates the config.
func NormalizeWorkspaceConfig(cfg WorkspaceConfig) (WorkspaceConfig, error) {
	if cfg.WindowID == "" {
		cfg.WindowID = MainWindow
	}
	if cfg.Profile == "" {
		cfg.Profile = "default"
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = DefaultPersistDebounce
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = DefaultBackoffCeiling
	}
	if cfg.BackoffAttempts <= 0 {
		cfg.BackoffAttempts = DefaultBackoffAttempts
	}
	if cfg.SpawnCols <= 0 {
		cfg.SpawnCols = DefaultSpawnCols
	}
	if cfg.SpawnRows <= 0 {
		cfg.SpawnRows = DefaultSpawnRows
	}
	if cfg.SettleDelay <= cfg.PersistDebounce {
		return WorkspaceConfig{}, errors.New("settle delay must exceed persist debounce")
	}
	if cfg.BackoffCeiling < cfg.BackoffBase {
		return WorkspaceConfig{}, errors.New("backoff ceiling must be at least the base delay")
	}
	return cfg, nil
}
