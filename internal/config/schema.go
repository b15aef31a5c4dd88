// Package config defines the configuration schema for miniclaw and its
// layered (file, then environment) loading.
package config

import (
	"os"
	"path/filepath"
)

// Config is the root configuration object, loaded from ~/.miniclaw/config.json.
// Field names mirror the spec's recognized configuration keys exactly; a
// handful of additive keys (gateway port, tool limits, the ws/slack channel
// tokens) extend it for the components SPEC_FULL.md adds.
type Config struct {
	Provider         string  `json:"provider"` // openai | openrouter | ollama | kimi
	Model            string  `json:"model"`
	APIKey           string  `json:"api_key"`
	BaseURL          string  `json:"base_url"`
	OllamaURL        string  `json:"ollama_url"`
	TelegramBotToken string  `json:"telegram_bot_token"`
	TelegramChatID   string  `json:"telegram_chat_id"`
	AllowFrom        []int64 `json:"allow_from"`
	WorkspacePath    string  `json:"workspace_path"`

	// Additive keys (not in the spec's recognized-key list; defaulted so their
	// absence never changes documented behavior).
	SlackBotToken    string `json:"slack_bot_token,omitempty"`
	SlackAppToken    string `json:"slack_app_token,omitempty"`
	WSListenAddr     string `json:"ws_listen_addr,omitempty"`
	GatewayPort      int    `json:"gateway_port,omitempty"`
	MaxToolIter      int    `json:"max_tool_iterations,omitempty"`
	MaxTokens        int    `json:"max_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	RestrictToWorkspace bool `json:"restrict_to_workspace,omitempty"`
	ExecTimeoutSec   int    `json:"exec_timeout_seconds,omitempty"`
	WebSearchAPIKey  string `json:"web_search_api_key,omitempty"`
	WebSearchMaxResults int `json:"web_search_max_results,omitempty"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Provider:            "openai",
		Model:               "gpt-4o-mini",
		WorkspacePath:       "~/.miniclaw/workspace",
		GatewayPort:         18790,
		MaxToolIter:         200,
		MaxTokens:           8192,
		Temperature:         0.7,
		RestrictToWorkspace: true,
		ExecTimeoutSec:      30,
		WebSearchMaxResults: 5,
	}
}

// ResolvedWorkspacePath returns the expanded absolute path to the agent
// workspace, honoring a leading "~/".
func (c *Config) ResolvedWorkspacePath() string {
	ws := c.WorkspacePath
	if ws == "" {
		ws = "~/.miniclaw/workspace"
	}
	if len(ws) >= 2 && ws[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			ws = filepath.Join(home, ws[2:])
		}
	}
	return ws
}

// Allowed reports whether senderID is permitted to reach the agent. An empty
// AllowFrom list denies everyone — the spec's documented default-deny.
func (c *Config) Allowed(senderID int64) bool {
	for _, id := range c.AllowFrom {
		if id == senderID {
			return true
		}
	}
	return false
}
