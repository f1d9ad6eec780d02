package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("profile", cfg.Profile)
	v.SetDefault("window", cfg.Window)
	v.SetDefault("backend.socket_url", cfg.Backend.SocketURL)
	v.SetDefault("backend.control_url", cfg.Backend.ControlURL)
	v.SetDefault("timing.persist_debounce_ms", cfg.Timing.PersistDebounceMS)
	v.SetDefault("timing.settle_delay_ms", cfg.Timing.SettleDelayMS)
	v.SetDefault("timing.backoff_base_ms", cfg.Timing.BackoffBaseMS)
	v.SetDefault("timing.backoff_ceiling_ms", cfg.Timing.BackoffCeilingMS)
	v.SetDefault("timing.backoff_attempts", cfg.Timing.BackoffAttempts)
	v.SetDefault("spawn.cols", cfg.Spawn.Cols)
	v.SetDefault("spawn.rows", cfg.Spawn.Rows)
	v.SetDefault("browser.base_url", cfg.Browser.BaseURL)
	v.SetDefault("browser.headless", cfg.Browser.Headless)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("backend.socket_url") {
			return Config{}, fmt.Errorf("backend.socket_url is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateBackendConfig(cfg.Backend); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateBackendConfig(cfg BackendConfig) error {
	socketURL := strings.TrimSpace(cfg.SocketURL)
	parsed, err := url.Parse(socketURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("backend.socket_url must include scheme and host (e.g. ws://host:port/ws)")
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("backend.socket_url must use ws or wss, got %q", parsed.Scheme)
	}
	controlURL := strings.TrimSpace(cfg.ControlURL)
	if controlURL != "" {
		parsed, err := url.Parse(controlURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("backend.control_url must include scheme and host (e.g. http://host:port)")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Backend.SocketURL = expandEnv(cfg.Backend.SocketURL)
	cfg.Backend.ControlURL = expandEnv(cfg.Backend.ControlURL)
	cfg.Browser.BaseURL = expandEnv(cfg.Browser.BaseURL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
