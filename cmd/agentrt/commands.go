package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kairoai/agentrt/internal/config"
	"github.com/kairoai/agentrt/internal/stopsignal"
)

// buildServeCmd creates the "serve" command that runs the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent runtime HTTP server",
		Long: `Start the agent runtime server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Clear the process-wide stop flag
3. Open the session metadata database and the on-disk stores
4. Sweep expired sessions, jobs, and overflow files
5. Serve the chat, jobs, sessions, and admin routes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentrt.yaml",
		"Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")
	return cmd
}

// buildStopCmd creates the "stop" command that sets the stop flag out of
// band by writing the sentinel file a running server checks at every
// iteration boundary.
func buildStopCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Set the process-wide stop flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			flag, err := stopFlagFor(configPath)
			if err != nil {
				return err
			}
			if err := flag.Set(); err != nil {
				return err
			}
			fmt.Println("stop flag set")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentrt.yaml", "Path to configuration file")
	return cmd
}

// buildResumeCmd creates the "resume" command that clears the stop flag.
func buildResumeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Clear the process-wide stop flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			flag, err := stopFlagFor(configPath)
			if err != nil {
				return err
			}
			if err := flag.Clear(); err != nil {
				return err
			}
			fmt.Println("stop flag cleared")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentrt.yaml", "Path to configuration file")
	return cmd
}

func stopFlagFor(configPath string) (*stopsignal.Flag, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return stopsignal.New(filepath.Join(cfg.DataDir, "STOP")), nil
}
