package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lydakis/llmcmd/internal/daemon"
	"github.com/lydakis/llmcmd/internal/paths"
)

var runForegroundFn = daemon.RunForeground

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			already, err := daemon.Start(cmd.Context(), startOptions(cfg))
			if err != nil {
				return err
			}
			if already {
				fmt.Fprintln(rootStderr, "daemon is already running")
				return nil
			}
			fmt.Fprintln(rootStderr, "daemon started")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := daemon.Stop(cmd.Context(), paths.SocketPath())
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(rootStdout, "daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(rootStdout, "daemon stopped")
			return nil
		},
	})

	var asJSON bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and what it serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd, outputModeFor(asJSON))
		},
	}
	status.Flags().BoolVar(&asJSON, "json", false, "Print the status report as JSON")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground, logging to stderr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(rootStderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
			err = runForegroundFn(cmd.Context(), cfg, logger)
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("%w (stop it with: llmcmd daemon stop)", err)
			}
			return err
		},
	})
	return cmd
}

func printStatus(cmd *cobra.Command, mode outputMode) error {
	report, err := daemon.Status(cmd.Context(), paths.SocketPath())
	if errors.Is(err, daemon.ErrNotRunning) {
		if mode.isJSON() {
			fmt.Fprintln(rootStdout, `{"state":"not_running"}`)
			return nil
		}
		fmt.Fprintln(rootStdout, "Daemon: not running")
		fmt.Fprintln(rootStdout, "Start with: llmcmd daemon start")
		return nil
	}
	if err != nil {
		return err
	}

	if mode.isJSON() {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(rootStdout, string(data))
		return nil
	}
	fmt.Fprintf(rootStdout, "Daemon: %s\n", report.State)
	fmt.Fprintf(rootStdout, "PID: %d\n", report.PID)
	fmt.Fprintf(rootStdout, "Backend: %s\n", report.Backend)
	fmt.Fprintf(rootStdout, "Default model: %s\n", report.Model)
	if report.Profile != "" {
		fmt.Fprintf(rootStdout, "Default profile: %s\n", report.Profile)
	}
	fmt.Fprintf(rootStdout, "Socket: %s\n", report.Socket)
	fmt.Fprintf(rootStdout, "Active requests: %d\n", report.Active)
	fmt.Fprintf(rootStdout, "Uptime: %s\n", time.Duration(report.UptimeSeconds)*time.Second)
	return nil
}
