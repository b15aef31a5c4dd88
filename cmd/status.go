package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/crystaldolphin/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show miniclaw status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s miniclaw Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	ws := cfg.ResolvedWorkspacePath()
	_, wsErr := os.Stat(ws)
	wsMark := "✗"
	if wsErr == nil {
		wsMark = "✓"
	}

	fmt.Printf("Workspace: %s %s\n", ws, wsMark)
	fmt.Printf("Provider:  %s\n", cfg.Provider)
	fmt.Printf("Model:     %s\n", cfg.Model)
	if cfg.APIKey != "" {
		fmt.Println("API key:   ✓")
	} else {
		fmt.Println("API key:   ✗ (not set)")
	}
	fmt.Printf("Allow from: %d sender(s)\n\n", len(cfg.AllowFrom))

	fmt.Println("Channels:")
	fmt.Printf("  %-10s %s\n", "telegram", configuredMark(cfg.TelegramBotToken != ""))
	fmt.Printf("  %-10s %s\n", "slack", configuredMark(cfg.SlackBotToken != "" && cfg.SlackAppToken != ""))
	fmt.Printf("  %-10s %s\n", "ws", configuredMark(cfg.WSListenAddr != ""))
	return nil
}

func configuredMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "(not configured)"
}
