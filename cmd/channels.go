package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/crystaldolphin/internal/config"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage chat channels",
}

func init() {
	channelsCmd.AddCommand(channelsStatusCmd)
}

var channelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show channel status",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.ConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		type row struct{ name, enabled, detail string }
		rows := []row{
			{"Telegram", yesNo(cfg.TelegramBotToken != ""), tokenHint(cfg.TelegramBotToken)},
			{"Slack", yesNo(cfg.SlackBotToken != "" && cfg.SlackAppToken != ""), func() string {
				if cfg.SlackBotToken != "" && cfg.SlackAppToken != "" {
					return "socket mode"
				}
				return "(not configured)"
			}()},
			{"WS", yesNo(cfg.WSListenAddr != ""), cfg.WSListenAddr},
			{"CLI", "✓", "always enabled"},
		}

		fmt.Printf("%-12s %-8s %s\n", "Channel", "Enabled", "Configuration")
		fmt.Println(repeatStr("-", 60))
		for _, r := range rows {
			fmt.Printf("%-12s %-8s %s\n", r.name, r.enabled, r.detail)
		}
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

func tokenHint(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "****"
}

func repeatStr(s string, n int) string {
	var b string
	for i := 0; i < n; i++ {
		b += s
	}
	return b
}

// providerCmd shows the configured Model Client.
var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Show the configured model provider",
}

func init() {
	providerCmd.AddCommand(providerShowCmd)
}

var providerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active provider, model, and base URL",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(config.ConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Printf("provider: %s\n", cfg.Provider)
		fmt.Printf("model:    %s\n", cfg.Model)
		if cfg.BaseURL != "" {
			fmt.Printf("base_url: %s\n", cfg.BaseURL)
		}
		fmt.Printf("api_key:  %s\n", tokenHint(cfg.APIKey))
		return nil
	},
}
