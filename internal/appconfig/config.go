package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/webmux/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Profile       string        `mapstructure:"profile" yaml:"profile"`
	Window        string        `mapstructure:"window" yaml:"window"`
	Backend       BackendConfig `mapstructure:"backend" yaml:"backend"`
	Timing        TimingConfig  `mapstructure:"timing" yaml:"timing"`
	Spawn         SpawnConfig   `mapstructure:"spawn" yaml:"spawn"`
	Browser       BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BackendConfig addresses the terminal backend.
type BackendConfig struct {
	// SocketURL is the WebSocket endpoint carrying the terminal protocol.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`
	// ControlURL is the REST base URL for session lifecycle calls.
	ControlURL string `mapstructure:"control_url" yaml:"control_url"`
}

// TimingConfig tunes persistence and reconnect behavior.
type TimingConfig struct {
	PersistDebounceMS int `mapstructure:"persist_debounce_ms" yaml:"persist_debounce_ms"`
	SettleDelayMS     int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
	BackoffBaseMS     int `mapstructure:"backoff_base_ms" yaml:"backoff_base_ms"`
	BackoffCeilingMS  int `mapstructure:"backoff_ceiling_ms" yaml:"backoff_ceiling_ms"`
	BackoffAttempts   int `mapstructure:"backoff_attempts" yaml:"backoff_attempts"`
}

// SpawnConfig sizes newly spawned terminals.
type SpawnConfig struct {
	Cols int `mapstructure:"cols" yaml:"cols"`
	Rows int `mapstructure:"rows" yaml:"rows"`
}

// BrowserConfig configures pop-out window opening.
type BrowserConfig struct {
	// BaseURL is the workspace UI origin new windows navigate to.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Headless runs the controlled browser without a display.
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".webmux", "state"),
		Profile:       "default",
		Window:        string(schema.MainWindow),
		Backend: BackendConfig{
			SocketURL:  "ws://127.0.0.1:27490/ws",
			ControlURL: "http://127.0.0.1:27490",
		},
		Timing: TimingConfig{
			PersistDebounceMS: int(schema.DefaultPersistDebounce / time.Millisecond),
			SettleDelayMS:     int(schema.DefaultSettleDelay / time.Millisecond),
			BackoffBaseMS:     int(schema.DefaultBackoffBase / time.Millisecond),
			BackoffCeilingMS:  int(schema.DefaultBackoffCeiling / time.Millisecond),
			BackoffAttempts:   schema.DefaultBackoffAttempts,
		},
		Spawn: SpawnConfig{
			Cols: schema.DefaultSpawnCols,
			Rows: schema.DefaultSpawnRows,
		},
		Browser: BrowserConfig{
			BaseURL:  "http://127.0.0.1:27490",
			Headless: false,
		},
	}, nil
}

// Workspace converts the loaded file config into the core's validated
// workspace parameters.
func (c Config) Workspace() (schema.WorkspaceConfig, error) {
	return schema.NormalizeWorkspaceConfig(schema.WorkspaceConfig{
		WindowID:        schema.WindowID(c.Window),
		Profile:         schema.ProfileID(c.Profile),
		PersistDebounce: time.Duration(c.Timing.PersistDebounceMS) * time.Millisecond,
		SettleDelay:     time.Duration(c.Timing.SettleDelayMS) * time.Millisecond,
		BackoffBase:     time.Duration(c.Timing.BackoffBaseMS) * time.Millisecond,
		BackoffCeiling:  time.Duration(c.Timing.BackoffCeilingMS) * time.Millisecond,
		BackoffAttempts: c.Timing.BackoffAttempts,
		SpawnCols:       c.Spawn.Cols,
		SpawnRows:       c.Spawn.Rows,
	})
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".webmux", "config.yaml"), nil
}
