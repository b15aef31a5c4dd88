package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/crystaldolphin/internal/channels"
	"github.com/crystaldolphin/crystaldolphin/internal/config"
	"github.com/crystaldolphin/crystaldolphin/internal/dependency"
	"github.com/crystaldolphin/crystaldolphin/internal/heartbeat"
)

var (
	gatewayPort    int
	gatewayVerbose bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Manage the miniclaw gateway server",
}

func init() {
	gatewayCmd.AddCommand(gatewayStartCmd)
	gatewayCmd.AddCommand(gatewayStopCmd)
	gatewayCmd.AddCommand(gatewayStatusCmd)

	gatewayStartCmd.Flags().IntVarP(&gatewayPort, "port", "p", 18790, "Gateway port")
	gatewayStartCmd.Flags().BoolVarP(&gatewayVerbose, "verbose", "v", false, "Verbose logging")
}

var gatewayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	RunE:  runGatewayStart,
}

func runGatewayStart(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := dependency.New(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting miniclaw gateway on port %d...\n", logo, gatewayPort)

	if err := writePIDFile(); err != nil {
		return err
	}
	defer removePIDFile()

	hub := svc.Hub()
	cronService := svc.CronService()
	loop := svc.AgentLoop()
	dispatcher := svc.Dispatcher()

	// Cron jobs land back on the hub's inbound queue via the callback wired
	// in dependency.newCronScheduler; the dispatcher picks them up the same
	// way it picks up any other channel's message.

	hb := heartbeat.NewService(cfg.ResolvedWorkspacePath(), func(ctx context.Context, content string) error {
		loop.ProcessDirect(ctx, content, "heartbeat:direct", "heartbeat", "direct")
		return nil
	}, 0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	channelMgr := channels.NewManager(cfg, hub)
	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return cronService.Run(gctx) })
	g.Go(func() error { return hb.Start(gctx) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })
	g.Go(func() error {
		dispatcher.MaintenanceLoop(gctx, 30*time.Second, 24*time.Hour)
		return gctx.Err()
	})

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	err = g.Wait()
	dispatcher.Shutdown(10 * time.Second)
	if err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

var gatewayStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running gateway server",
	RunE: func(_ *cobra.Command, _ []string) error {
		pid, err := readPIDFile()
		if err != nil {
			return fmt.Errorf("gateway does not appear to be running: %w", err)
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("could not find process %d: %w", pid, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop gateway (pid %d): %w", pid, err)
		}
		fmt.Printf("✓ Sent SIGTERM to gateway (pid %d)\n", pid)
		return nil
	},
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	RunE: func(_ *cobra.Command, _ []string) error {
		pid, err := readPIDFile()
		if err != nil {
			fmt.Println("Gateway: stopped")
			return nil
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			fmt.Println("Gateway: stopped")
			return nil
		}
		// On Linux, FindProcess always succeeds; send signal 0 to check liveness.
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("Gateway: stopped")
			removePIDFile()
			return nil
		}
		fmt.Printf("Gateway: running (pid %d, port %d)\n", pid, gatewayPort)
		return nil
	},
}

func pidFilePath() string {
	return filepath.Join(config.DataDir(), "gateway.pid")
}

func writePIDFile() error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile() {
	_ = os.Remove(pidFilePath())
}

func readPIDFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
