package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
)

// ConfigPath returns the default configuration file path: ~/.miniclaw/config.json.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".miniclaw/config.json"
	}
	return filepath.Join(home, ".miniclaw", "config.json")
}

// DataDir returns the miniclaw data directory: ~/.miniclaw.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".miniclaw"
	}
	return filepath.Join(home, ".miniclaw")
}

// Load reads the config file at path (ConfigPath() if empty), then applies
// environment variable overrides. A missing file yields DefaultConfig(); a
// malformed file is fatal (Config kind) per the spec's error propagation
// policy — startup configuration errors are not recoverable.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.Config, fmt.Sprintf("parse %s", path), err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Save writes cfg to path (ConfigPath() if empty) as indented JSON, mode 0600.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides overlays MINICLAW_* environment variables onto cfg.
// Environment variables override file values. No CLI-flag layer is applied on
// top; the cmd package binds no configuration flags.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("MINICLAW_PROVIDER", &cfg.Provider)
	str("MINICLAW_MODEL", &cfg.Model)
	str("MINICLAW_API_KEY", &cfg.APIKey)
	str("MINICLAW_BASE_URL", &cfg.BaseURL)
	str("MINICLAW_OLLAMA_URL", &cfg.OllamaURL)
	str("MINICLAW_TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)
	str("MINICLAW_TELEGRAM_CHAT_ID", &cfg.TelegramChatID)
	str("MINICLAW_WORKSPACE_PATH", &cfg.WorkspacePath)

	if v := os.Getenv("MINICLAW_ALLOW_FROM"); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if n, err := strconv.ParseInt(part, 10, 64); err == nil {
				ids = append(ids, n)
			}
		}
		if len(ids) > 0 {
			cfg.AllowFrom = ids
		}
	}
}
